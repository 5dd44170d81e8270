package purchase

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/openbooks/backend/internal/domain/shared"
)

// QRSigner signs ticket QR payloads so gate scanners can verify them
// offline. Implementations hold the organization's signing key.
type QRSigner interface {
	Sign(payload string) (string, error)
}

// Ticket is an admission ticket issued for one unit of a ticket-bearing
// purchase item once the purchase is paid.
type Ticket struct {
	shared.BaseEntity
	PurchaseItemID uuid.UUID  `gorm:"type:uuid;not null;index"`
	OrgID          uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name           string     `gorm:"type:varchar(200);not null"`
	Nonce          uint32     `gorm:"not null"`
	QRCode         string     `gorm:"type:varchar(500);not null"`
	Barcode        string     `gorm:"type:varchar(40);not null"`
	VoidedAt       *time.Time `gorm:""`
	VoidedBy       *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (Ticket) TableName() string {
	return "tickets"
}

// Void marks the ticket as used. Returns false when already voided.
func (t *Ticket) Void(userID uuid.UUID) bool {
	if t.VoidedAt != nil {
		return false
	}
	now := time.Now()
	t.VoidedAt = &now
	t.VoidedBy = &userID
	return true
}

// Unvoid reverses a void, for scan mistakes at the gate
func (t *Ticket) Unvoid() {
	t.VoidedAt = nil
	t.VoidedBy = nil
}

// IsVoided reports whether the ticket has been used
func (t *Ticket) IsVoided() bool {
	return t.VoidedAt != nil
}

// TicketIssuer creates signed tickets. The base URL points scanners at
// the verification endpoint encoded in every QR code.
type TicketIssuer struct {
	baseURL string
	signer  QRSigner
}

// NewTicketIssuer creates a new ticket issuer
func NewTicketIssuer(baseURL string, signer QRSigner) *TicketIssuer {
	return &TicketIssuer{baseURL: baseURL, signer: signer}
}

// Issue creates one ticket for a purchase item
func (ti *TicketIssuer) Issue(orgID uuid.UUID, item *PurchaseItem) (*Ticket, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("generating ticket nonce: %w", err)
	}

	ticket := &Ticket{
		BaseEntity:     shared.NewBaseEntity(),
		PurchaseItemID: item.ID,
		OrgID:          orgID,
		Name:           item.Name,
		Nonce:          nonce,
	}

	productID := ""
	if item.ProductID != nil {
		productID = item.ProductID.String()
	}
	payload := fmt.Sprintf("%s/ticket/%s/%d/%s/", ti.baseURL, ticket.ID, ticket.Nonce, productID)

	signature, err := ti.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("signing ticket payload: %w", err)
	}
	ticket.QRCode = payload + signature

	ticket.Barcode = barcodeFor(ticket.ID, ticket.Nonce)

	return ticket, nil
}

// barcodeFor derives a fixed-width numeric barcode from the ticket id and
// nonce, for venues whose scanners cannot read QR codes
func barcodeFor(id uuid.UUID, nonce uint32) string {
	n := new(big.Int).SetUint64(binary.BigEndian.Uint64(id[:8]))
	n.Lsh(n, 32)
	n.Or(n, big.NewInt(int64(nonce)))
	return fmt.Sprintf("%040d", n)
}

func randomNonce() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
