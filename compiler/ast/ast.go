package ast

type (
	// Node is one variant of the syntax tree.
	// The set is closed: lowering switches exhaustively over these nine kinds.
	Node interface {
		node()
	}

	Number struct {
		Value float64
	}

	BinaryOp struct {
		Op    string
		Left  Node
		Right Node
	}

	Variable struct {
		Name string
	}

	Assign struct {
		Name  string
		Value Node
	}

	Call struct {
		Name string
		Args []Node
	}

	FuncDef struct {
		Name   string
		Params []string
		Body   []Node
	}

	If struct {
		Cond Node
		Then []Node
		Else []Node // nil when no else clause was supplied
	}

	While struct {
		Cond Node
		Body []Node
	}

	Return struct {
		Value Node
	}
)

func (Number) node()   {}
func (BinaryOp) node() {}
func (Variable) node() {}
func (Assign) node()   {}
func (Call) node()     {}
func (FuncDef) node()  {}
func (If) node()       {}
func (While) node()    {}
func (Return) node()   {}
