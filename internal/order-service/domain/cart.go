package domain

type Cart struct {
	UserID string
	Lines  []CartLine
}

// CartLine quantities are always at least 1.
type CartLine struct {
	ProductID string
	Quantity  int
}

func (c Cart) IsEmpty() bool { return len(c.Lines) == 0 }

func (c Cart) Clone() Cart {
	return Cart{UserID: c.UserID, Lines: append([]CartLine(nil), c.Lines...)}
}
