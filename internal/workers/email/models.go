// internal/workers/email/models.go
package email

// templateBlob is the JSON payload stored in an email content row at
// materialization time.
type templateBlob struct {
	TemplateData  map[string]interface{} `json:"templateData"`
	Subject       string                 `json:"subject"`
	EmailTemplate string                 `json:"emailTemplate"`
}
