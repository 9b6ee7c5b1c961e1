/*

Process of compilation

Program Text ->
	lex ->
Token Stream ->
	parse ->
Abstract Syntax Tree (ast) ->
	gen ->
LLVM IR Module ->
	back ->
Verified Execution -> float64 result

Every stage runs exactly once per compilation and feeds strictly forward.
Any failure anywhere aborts the whole pipeline.

*/
package compiler
