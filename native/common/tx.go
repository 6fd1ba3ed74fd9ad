package common

// TxRunner executes a function inside an all-or-nothing state transaction. Any
// error or panic discards every state write performed by fn.
type TxRunner interface {
	WithTransaction(fn func() error) error
}
