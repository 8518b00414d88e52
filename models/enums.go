package models

// Role is fixed at registration and gates every lifecycle transition
type Role string

const (
	RoleCustomer     Role = "customer"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleProfessional, RoleAdmin:
		return true
	}
	return false
}

// SelfAssignable reports whether a user may pick this role when registering
func (r Role) SelfAssignable() bool {
	return r == RoleCustomer || r == RoleProfessional
}

// UserStatus controls whether a principal may authenticate
type UserStatus string

const (
	UserActive UserStatus = "active"
	UserBanned UserStatus = "banned"
)

// OfferStatus is monotonic: nothing leaves accepted, rejected or withdrawn
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferRejected  OfferStatus = "rejected"
	OfferWithdrawn OfferStatus = "withdrawn"
)

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferPending, OfferAccepted, OfferRejected, OfferWithdrawn:
		return true
	}
	return false
}

// Terminal reports whether the offer can no longer change
func (s OfferStatus) Terminal() bool {
	return s != OfferPending
}

// ComplaintStatus is terminal once resolved or rejected
type ComplaintStatus string

const (
	ComplaintOpen     ComplaintStatus = "open"
	ComplaintResolved ComplaintStatus = "resolved"
	ComplaintRejected ComplaintStatus = "rejected"
)

func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintOpen, ComplaintResolved, ComplaintRejected:
		return true
	}
	return false
}

// TransactionType identifies a ledger entry
type TransactionType string

const (
	TransactionEarning    TransactionType = "earning"
	TransactionWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus tracks a ledger entry through approval
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)
