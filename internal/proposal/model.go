package proposal

import "time"

const (
	StatusSent        = "Enviada"
	StatusNegotiating = "En negociacion"
	StatusAccepted    = "Aceptada"
	StatusRejected    = "Rechazada"
	StatusDraft       = "Borrador"
)

var validStatuses = map[string]struct{}{
	StatusSent:        {},
	StatusNegotiating: {},
	StatusAccepted:    {},
	StatusRejected:    {},
	StatusDraft:       {},
}

type Proposal struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	ClientName   string    `json:"client_name"`
	Platform     string    `json:"platform"`
	ProjectTitle string    `json:"project_title"`
	ProjectLink  *string   `json:"project_link"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}

type ProposalInput struct {
	ClientName   string  `json:"client_name"`
	Platform     string  `json:"platform"`
	ProjectTitle string  `json:"project_title"`
	ProjectLink  *string `json:"project_link"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	Notes        *string `json:"notes"`
}

// ProposalPatch holds a partial update; nil fields are left untouched.
type ProposalPatch struct {
	ClientName   *string  `json:"client_name"`
	Platform     *string  `json:"platform"`
	ProjectTitle *string  `json:"project_title"`
	ProjectLink  *string  `json:"project_link"`
	Amount       *float64 `json:"amount"`
	Currency     *string  `json:"currency"`
	Status       *string  `json:"status"`
	Notes        *string  `json:"notes"`
}

func (p ProposalPatch) Apply(in ProposalInput) ProposalInput {
	if p.ClientName != nil {
		in.ClientName = *p.ClientName
	}
	if p.Platform != nil {
		in.Platform = *p.Platform
	}
	if p.ProjectTitle != nil {
		in.ProjectTitle = *p.ProjectTitle
	}
	if p.ProjectLink != nil {
		in.ProjectLink = p.ProjectLink
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.Currency != nil {
		in.Currency = *p.Currency
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.Notes != nil {
		in.Notes = p.Notes
	}
	return in
}

func (p Proposal) Input() ProposalInput {
	return ProposalInput{
		ClientName:   p.ClientName,
		Platform:     p.Platform,
		ProjectTitle: p.ProjectTitle,
		ProjectLink:  p.ProjectLink,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Status:       p.Status,
		Notes:        p.Notes,
	}
}

type Stats struct {
	Total             int64   `json:"total"`
	Accepted          int64   `json:"accepted"`
	Rejected          int64   `json:"rejected"`
	Pending           int64   `json:"pending"`
	ConversionPercent float64 `json:"conversion_percent"`
}
