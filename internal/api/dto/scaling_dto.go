package dto

// Pointers let binding tell a missing field from an explicit 0
type ScalingRequest struct {
	MinCapacity *int32 `json:"minCapacity" binding:"required"`
	MaxCapacity *int32 `json:"maxCapacity" binding:"required"`
}

type ScalingResponse struct {
	Message     string `json:"message"`
	MinCapacity int32  `json:"minCapacity"`
	MaxCapacity int32  `json:"maxCapacity"`
}
