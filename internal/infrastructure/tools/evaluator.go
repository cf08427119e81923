package tools

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// allowedExpressionChars is the pre-filter applied before parsing.
const allowedExpressionChars = "0123456789+-*/()%. "

// maxIntegerBits bounds integer results so that exponentiation on user input
// cannot exhaust memory.
const maxIntegerBits = 1 << 16

// EvalError is the single error kind returned by Evaluate.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string {
	return "invalid expression: " + e.Message
}

func evalErrorf(format string, args ...any) *EvalError {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}

// IsEvalError reports whether err is an evaluator error.
func IsEvalError(err error) bool {
	var target *EvalError
	return errors.As(err, &target)
}

// Evaluate parses expression with a restricted arithmetic grammar and
// evaluates it. Only numeric literals, unary + and -, and the binary
// operators + - * / % ** are accepted.
func Evaluate(expression string) (string, error) {
	if err := prefilter(expression); err != nil {
		return "", err
	}
	tree, err := parse(expression)
	if err != nil {
		return "", err
	}
	value, err := tree.eval()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

func prefilter(expression string) error {
	for _, r := range expression {
		if !strings.ContainsRune(allowedExpressionChars, r) {
			return evalErrorf("invalid characters in expression")
		}
	}
	return nil
}

// number is either an arbitrary precision integer or a float64.
type number struct {
	i *big.Int
	f float64
}

func intNumber(v *big.Int) number {
	return number{i: v}
}

func floatNumber(v float64) number {
	return number{f: v}
}

func (n number) isInt() bool {
	return n.i != nil
}

func (n number) isZero() bool {
	if n.isInt() {
		return n.i.Sign() == 0
	}
	return n.f == 0
}

func (n number) float() (float64, error) {
	if !n.isInt() {
		return n.f, nil
	}
	f, _ := new(big.Float).SetInt(n.i).Float64()
	if math.IsInf(f, 0) {
		return 0, evalErrorf("integer too large to convert to float")
	}
	return f, nil
}

// String renders integers without a decimal point and floats the way a
// Python float repr does (2.0, 0.5, 1e-05, 1e+16).
func (n number) String() string {
	if n.isInt() {
		return n.i.String()
	}
	f := n.f
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type node interface {
	eval() (number, error)
}

type literalNode struct {
	value number
}

func (n literalNode) eval() (number, error) { return n.value, nil }

type unaryNode struct {
	op      byte
	operand node
}

func (n unaryNode) eval() (number, error) {
	v, err := n.operand.eval()
	if err != nil {
		return number{}, err
	}
	if n.op == '+' {
		return v, nil
	}
	if v.isInt() {
		return intNumber(new(big.Int).Neg(v.i)), nil
	}
	return floatNumber(-v.f), nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval() (number, error) {
	l, err := n.left.eval()
	if err != nil {
		return number{}, err
	}
	r, err := n.right.eval()
	if err != nil {
		return number{}, err
	}
	switch n.op {
	case "+", "-", "*":
		return arith(n.op, l, r)
	case "/":
		return divide(l, r)
	case "%":
		return modulo(l, r)
	case "**":
		return power(l, r)
	default:
		return number{}, evalErrorf("unsupported operator %q", n.op)
	}
}

func arith(op string, l, r number) (number, error) {
	if l.isInt() && r.isInt() {
		out := new(big.Int)
		switch op {
		case "+":
			out.Add(l.i, r.i)
		case "-":
			out.Sub(l.i, r.i)
		case "*":
			if l.i.BitLen()+r.i.BitLen() > maxIntegerBits {
				return number{}, evalErrorf("result too large")
			}
			out.Mul(l.i, r.i)
		}
		return intNumber(out), nil
	}
	lf, err := l.float()
	if err != nil {
		return number{}, err
	}
	rf, err := r.float()
	if err != nil {
		return number{}, err
	}
	switch op {
	case "+":
		return floatNumber(lf + rf), nil
	case "-":
		return floatNumber(lf - rf), nil
	default:
		return floatNumber(lf * rf), nil
	}
}

func divide(l, r number) (number, error) {
	if r.isZero() {
		return number{}, evalErrorf("division by zero")
	}
	if l.isInt() && r.isInt() {
		f, _ := new(big.Rat).SetFrac(l.i, r.i).Float64()
		if math.IsInf(f, 0) {
			return number{}, evalErrorf("integer division result too large")
		}
		return floatNumber(f), nil
	}
	lf, err := l.float()
	if err != nil {
		return number{}, err
	}
	rf, err := r.float()
	if err != nil {
		return number{}, err
	}
	return floatNumber(lf / rf), nil
}

// modulo follows floored semantics: the result takes the divisor's sign.
func modulo(l, r number) (number, error) {
	if r.isZero() {
		return number{}, evalErrorf("modulo by zero")
	}
	if l.isInt() && r.isInt() {
		rem := new(big.Int).Rem(l.i, r.i)
		if rem.Sign() != 0 && rem.Sign() != r.i.Sign() {
			rem.Add(rem, r.i)
		}
		return intNumber(rem), nil
	}
	lf, err := l.float()
	if err != nil {
		return number{}, err
	}
	rf, err := r.float()
	if err != nil {
		return number{}, err
	}
	rem := math.Mod(lf, rf)
	if rem != 0 && (rem < 0) != (rf < 0) {
		rem += rf
	}
	return floatNumber(rem), nil
}

func power(base, exp number) (number, error) {
	if base.isInt() && exp.isInt() && exp.i.Sign() >= 0 {
		if base.i.CmpAbs(big.NewInt(1)) <= 0 {
			return intNumber(smallBasePower(base.i, exp.i)), nil
		}
		if !exp.i.IsInt64() || exp.i.Int64() > maxIntegerBits ||
			int64(base.i.BitLen()-1)*exp.i.Int64() > maxIntegerBits {
			return number{}, evalErrorf("result too large")
		}
		return intNumber(new(big.Int).Exp(base.i, exp.i, nil)), nil
	}

	bf, err := base.float()
	if err != nil {
		return number{}, err
	}
	ef, err := exp.float()
	if err != nil {
		return number{}, err
	}
	if bf == 0 && ef < 0 {
		return number{}, evalErrorf("zero cannot be raised to a negative power")
	}
	if bf < 0 && ef != math.Trunc(ef) {
		return number{}, evalErrorf("complex results are not supported")
	}
	out := math.Pow(bf, ef)
	if math.IsInf(out, 0) {
		return number{}, evalErrorf("numerical result out of range")
	}
	return floatNumber(out), nil
}

// smallBasePower handles bases -1, 0 and 1 for any non-negative exponent.
func smallBasePower(base, exp *big.Int) *big.Int {
	switch base.Sign() {
	case 0:
		if exp.Sign() == 0 {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	case 1:
		return big.NewInt(1)
	default:
		if exp.Bit(0) == 0 {
			return big.NewInt(1)
		}
		return big.NewInt(-1)
	}
}
