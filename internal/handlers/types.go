package handlers

// SubmitContactRequest is the contact form submission.
type SubmitContactRequest struct {
	RecaptchaToken string `doc:"reCAPTCHA v3 token" header:"X-Recaptcha-Token"`
	Body           struct {
		Name            string `doc:"Sender name"                       example:"Budi Santoso"                 json:"name"                       maxLength:"100"  minLength:"3"`
		Company         string `doc:"Sender company or institution"     example:"PT Maju Jaya"                 json:"company"                    maxLength:"100"  minLength:"2"`
		Email           string `doc:"Reply address"                     example:"budi@example.com"             format:"email"                    json:"email"     maxLength:"254"`
		Phone           string `doc:"Phone number, digits only"         example:"+6281234567890"               json:"phone"                      pattern:"^[+]?[0-9]{8,15}$"`
		ProjectType     string `doc:"Kind of project"                   example:"warehouse"                    json:"project_type"               minLength:"1"`
		ProjectValue    string `doc:"Estimated project value"           example:"1-5M"                         json:"project_value,omitempty"    maxLength:"100"`
		Location        string `doc:"Project location"                  example:"Surabaya, Jawa Timur"         json:"location"                   maxLength:"200"  minLength:"3"`
		Message         string `doc:"Message"                           example:"We need a quotation for a new warehouse." json:"message" maxLength:"1000" minLength:"10"`
		RequestProposal bool   `doc:"Whether a formal proposal is requested"                                    json:"request_proposal,omitempty"`
		HoneypotField   string `doc:"Must be left empty"                json:"hp_field,omitempty"`
		RecaptchaToken  string `doc:"reCAPTCHA token when not sent as a header" json:"recaptchaToken,omitempty"`
	}
}

// SubmitContactResponse acknowledges a submission.
type SubmitContactResponse struct {
	Body struct {
		Status    string `doc:"Always ok"                          example:"ok"         json:"status"`
		Reference string `doc:"Reference code of the stored request" example:"V1StGXR8_Z" json:"reference,omitempty"`
	}
}

// ListSubmissionsRequest selects a window of stored submissions.
type ListSubmissionsRequest struct {
	Limit  int    `default:"100" doc:"Maximum number of rows"           maximum:"100000" minimum:"1" query:"limit"`
	Offset int    `default:"0"   doc:"Rows to skip, newest first"       minimum:"0"      query:"offset"`
	Export string `doc:"Stream CSV when 1 or true"                     query:"export"`
}

// WantsExport reports whether the caller asked for a CSV download.
func (r *ListSubmissionsRequest) WantsExport() bool {
	return r.Export == "1" || r.Export == "true"
}
