package processreceipt

import "receipt-agent/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"employeeId", "receiptFile"},
		Properties: map[string]validation.Property{
			"fileId": {
				Type:        "string",
				Description: "Intake file id; generated when absent",
				MaxLength:   validation.IntPtr(64),
			},
			"employeeId": {
				Type:        "string",
				Description: "Submitting employee",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(64),
			},
			"receiptFile": {
				Type:        "string",
				Description: "Base64 encoded receipt image",
				MinLength:   validation.IntPtr(1),
			},
			"contentType": {
				Type:        "string",
				Description: "Image content type; sniffed when absent",
				Enum:        []string{"image/png", "image/jpeg", "image/webp", "image/gif"},
			},
		},
		// the process instance carries more variables than this job reads
		AdditionalProperties: true,
	}
}
