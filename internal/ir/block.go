package ir

type Block struct {
	ID     BlockID
	Instrs []ValueID
	Term   Terminator
	// Handler is the catch block that receives exceptions raised here.
	Handler BlockID
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}
