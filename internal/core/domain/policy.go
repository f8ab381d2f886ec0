package domain

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Operation string

const (
	OpListSweets    Operation = "sweets.list"
	OpSearchSweets  Operation = "sweets.search"
	OpGetSweet      Operation = "sweets.get"
	OpPurchaseSweet Operation = "sweets.purchase"
	OpCreateSweet   Operation = "sweets.create"
	OpUpdateSweet   Operation = "sweets.update"
	OpDeleteSweet   Operation = "sweets.delete"
	OpRestockSweet  Operation = "sweets.restock"
)

var adminOnly = map[Operation]bool{
	OpCreateSweet:  true,
	OpUpdateSweet:  true,
	OpDeleteSweet:  true,
	OpRestockSweet: true,
}

var anyCaller = map[Operation]bool{
	OpListSweets:    true,
	OpSearchSweets:  true,
	OpGetSweet:      true,
	OpPurchaseSweet: true,
}

// Authorize decides whether an authenticated caller holding role may run op.
// Unknown roles and unknown operations are denied.
func Authorize(role Role, op Operation) error {
	if !role.Valid() {
		return ErrForbidden
	}
	switch {
	case anyCaller[op]:
		return nil
	case adminOnly[op] && role == RoleAdmin:
		return nil
	default:
		return ErrForbidden
	}
}
