// Package syntax implements the recursive-descent parser producing a
// lossless concrete syntax tree (spec §4.2), generalized from the
// teacher's Pratt-precedence Prolog parser (lang/parser.go,
// lang/operators.go) to Rune's expression/item/pattern grammar.
package syntax

// Kind discriminates CST node shapes. Leaf kinds wrap a single token;
// composite kinds own an ordered list of children (which may themselves be
// Error nodes from recovery, or trivia, so every byte of source is
// attributed to some node per spec §4.2).
type Kind uint16

const (
	KError Kind = iota
	KTrivia // whitespace/comment, attributed verbatim into the tree

	// Literals.
	KLitInt
	KLitFloat
	KLitBool
	KLitChar
	KLitByte
	KLitString
	KLitByteStr
	KLitUnit

	// Expressions.
	KPath
	KBlock
	KTupleExpr
	KArrayExpr
	KObjectExpr
	KUnaryExpr
	KBinaryExpr
	KAssignExpr
	KRangeExpr
	KIfExpr
	KWhileExpr
	KLoopExpr
	KForExpr
	KMatchExpr
	KMatchArm
	KSelectExpr
	KBreakExpr
	KContinueExpr
	KReturnExpr
	KYieldExpr
	KClosureExpr
	KFieldExpr
	KIndexExpr
	KCallExpr
	KMethodCallExpr
	KTryExpr
	KAwaitExpr
	KAsyncBlockExpr
	KLetExpr

	// Patterns.
	KPatIgnore
	KPatRest
	KPatPath
	KPatTuple
	KPatArray
	KPatObject
	KPatObjectField
	KPatBinding
	KPatLit

	// Items.
	KItemStruct
	KItemEnum
	KItemEnumVariant
	KItemFn
	KItemImpl
	KItemMod
	KItemUse
	KItemConst
	KFieldDecl
	KParam
	KAttribute

	KSourceFile
)

func (k Kind) String() string {
	names := map[Kind]string{
		KError: "Error", KTrivia: "Trivia",
		KLitInt: "LitInt", KLitFloat: "LitFloat", KLitBool: "LitBool",
		KLitChar: "LitChar", KLitByte: "LitByte", KLitString: "LitString",
		KLitByteStr: "LitByteStr", KLitUnit: "LitUnit",
		KPath: "Path", KBlock: "Block", KTupleExpr: "TupleExpr",
		KArrayExpr: "ArrayExpr", KObjectExpr: "ObjectExpr",
		KUnaryExpr: "UnaryExpr", KBinaryExpr: "BinaryExpr",
		KAssignExpr: "AssignExpr", KRangeExpr: "RangeExpr",
		KIfExpr: "IfExpr", KWhileExpr: "WhileExpr", KLoopExpr: "LoopExpr",
		KForExpr: "ForExpr", KMatchExpr: "MatchExpr", KMatchArm: "MatchArm",
		KSelectExpr: "SelectExpr", KBreakExpr: "BreakExpr",
		KContinueExpr: "ContinueExpr", KReturnExpr: "ReturnExpr",
		KYieldExpr: "YieldExpr", KClosureExpr: "ClosureExpr",
		KFieldExpr: "FieldExpr", KIndexExpr: "IndexExpr",
		KCallExpr: "CallExpr", KMethodCallExpr: "MethodCallExpr",
		KTryExpr: "TryExpr", KAwaitExpr: "AwaitExpr",
		KAsyncBlockExpr: "AsyncBlockExpr", KLetExpr: "LetExpr",
		KPatIgnore: "PatIgnore", KPatRest: "PatRest", KPatPath: "PatPath",
		KPatTuple: "PatTuple", KPatArray: "PatArray", KPatObject: "PatObject",
		KPatObjectField: "PatObjectField", KPatBinding: "PatBinding", KPatLit: "PatLit",
		KItemStruct: "ItemStruct", KItemEnum: "ItemEnum",
		KItemEnumVariant: "ItemEnumVariant", KItemFn: "ItemFn",
		KItemImpl: "ItemImpl", KItemMod: "ItemMod", KItemUse: "ItemUse",
		KItemConst: "ItemConst", KFieldDecl: "FieldDecl", KParam: "Param",
		KAttribute: "Attribute", KSourceFile: "SourceFile",
	}
	if n, ok := names[k]; ok {
		return n
	}
	return "Unknown"
}
