package model

import (
	"time"

	"github.com/google/uuid"
)

// AddressMapping links an inbound chain address (plus optional extra tag) to
// the logical outbound destination. The reconciliation engine embeds the
// resolved mapping into the transaction record at creation time; later
// mapping changes never touch existing records.
type AddressMapping struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Asset           string    `db:"asset" json:"asset"`
	AddressIn       string    `db:"address_in" json:"addressIn"`
	AddressInExtra  *string   `db:"address_in_extra" json:"addressInExtra,omitempty"`
	AddressOut      string    `db:"address_out" json:"addressOut"`
	AddressOutExtra *string   `db:"address_out_extra" json:"addressOutExtra,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}
