package httpdto

// UploadResponse is returned by POST /v1/uploads; Attachment can be sent as is
// in a SendMessageRequest.
type UploadResponse struct {
	Attachment AttachmentDTO `json:"attachment"`
}

type UploadRecordDTO struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

type UploadListResponse struct {
	Uploads []UploadRecordDTO `json:"uploads"`
}
