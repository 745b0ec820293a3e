package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is the borrower a loan is granted to
type Client struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FullName       string     `gorm:"not null" json:"full_name"`
	Identity       string     `gorm:"uniqueIndex;not null" json:"identity"`
	Phone          string     `json:"phone"`
	Address        *string    `json:"address"`
	Note           *string    `gorm:"type:text" json:"note"`
	Classification string     `gorm:"size:16;default:AL_DIA;not null;index" json:"classification"`
	ClassifiedAt   *time.Time `json:"classified_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Associations
	Loans []Loan `gorm:"foreignKey:ClientID" json:"loans,omitempty"`
}

// TableName specifies the table name for Client
func (Client) TableName() string {
	return "clients"
}

// Client classification constants
const (
	ClassificationAlDia    = "AL_DIA"
	ClassificationAtrasado = "ATRASADO"
	ClassificationMoroso   = "MOROSO"
)

// ClassificationRank orders classifications from healthiest to worst
func ClassificationRank(c string) int {
	switch c {
	case ClassificationMoroso:
		return 2
	case ClassificationAtrasado:
		return 1
	}
	return 0
}

// ClientResponse is the JSON response format for clients
type ClientResponse struct {
	ID             uuid.UUID  `json:"id"`
	FullName       string     `json:"full_name"`
	Identity       string     `json:"identity"`
	Phone          string     `json:"phone"`
	Address        *string    `json:"address"`
	Note           *string    `json:"note"`
	Classification string     `json:"classification"`
	ClassifiedAt   *time.Time `json:"classified_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ToResponse converts Client to ClientResponse
func (c *Client) ToResponse() ClientResponse {
	return ClientResponse{
		ID:             c.ID,
		FullName:       c.FullName,
		Identity:       MaskIdentity(c.Identity),
		Phone:          c.Phone,
		Address:        c.Address,
		Note:           c.Note,
		Classification: c.Classification,
		ClassifiedAt:   c.ClassifiedAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
