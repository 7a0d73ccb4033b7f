package relay

// AuthGate admits exactly one configured identity. It is immutable.
type AuthGate struct {
	adminID int64
}

func NewAuthGate(adminID int64) AuthGate { return AuthGate{adminID: adminID} }

// Authorize reports whether callerID is the admin. An unset admin id admits nobody.
func (g AuthGate) Authorize(callerID int64) bool {
	return g.adminID != 0 && callerID == g.adminID
}

func (g AuthGate) AdminID() int64 { return g.adminID }
