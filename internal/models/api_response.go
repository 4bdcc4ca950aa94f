package models

// APIResponse is the JSON envelope every JSON body of the gateway uses.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// RemovedBackground is the data of a successful JSON-mode removal.
type RemovedBackground struct {
	Image string `json:"image"`
}

// Base64ImageRequest is the JSON body accepted by POST /remove-background.
type Base64ImageRequest struct {
	Base64Image string `json:"base64Image" binding:"required"`
}
