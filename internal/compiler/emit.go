package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Kotoad/APP-PyQt-sub000/internal/diagram"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// emitFunc writes one block at depth and returns the block to continue with.
// stop holds blocks where the enclosing construct ends.
type emitFunc func(e *emitter, b *models.Block, depth int, stop map[string]bool) *models.Block

var emitters map[models.BlockType]emitFunc

func init() {
	emitters = map[models.BlockType]emitFunc{
		models.BlockStart:                 emitStart,
		models.BlockEnd:                   emitEnd,
		models.BlockTimer:                 emitTimer,
		models.BlockBlinkLED:              emitBlink,
		models.BlockToggleLED:             emitToggle,
		models.BlockSwitch:                emitSwitch,
		models.BlockButton:                emitButton,
		models.BlockPWMLED:                emitPWM,
		models.BlockRGBLED:                emitRGB,
		models.BlockIf:                    emitIf,
		models.BlockWhile:                 emitWhile,
		models.BlockWhileTrue:             emitWhileTrue,
		models.BlockForLoop:               emitForLoop,
		models.BlockBasicOperations:       emitArithmetic,
		models.BlockExponentialOperations: emitArithmetic,
		models.BlockRandomNumber:          emitRandom,
		models.BlockNetworks:              emitNetworks,
		models.BlockFunction:              emitCall,
	}
}

var outPorts = []models.Port{models.PortOut, models.PortOut1, models.PortOut2}

type emitter struct {
	*program
	canvas *models.Canvas
	names  *names
	onPath map[string]bool
}

func (pr *program) emitter(c *models.Canvas, n *names) *emitter {
	return &emitter{program: pr, canvas: c, names: n, onPath: make(map[string]bool)}
}

func (e *emitter) start() *models.Block {
	for _, b := range e.canvas.Blocks.Values() {
		if b.Type == models.BlockStart {
			return b
		}
	}
	return nil
}

func (e *emitter) next(b *models.Block, port models.Port) *models.Block {
	n, _, _ := diagram.Successor(e.canvas, b, port)
	return n
}

// exit is where a loop continues once its condition fails.
func (e *emitter) exit(b *models.Block) *models.Block {
	if n := e.next(b, models.PortOut2); n != nil {
		return n
	}
	return e.next(b, models.PortOut)
}

// walk emits the chain starting at b until it ends, reaches End, or enters
// a block in stop.
func (e *emitter) walk(b *models.Block, depth int, stop map[string]bool) {
	var entered []string
	defer func() {
		for _, id := range entered {
			delete(e.onPath, id)
		}
	}()
	for b != nil && !stop[b.ID] {
		if e.onPath[b.ID] {
			e.warn("cycle through %s without a loop block", b.ID)
			return
		}
		e.onPath[b.ID] = true
		entered = append(entered, b.ID)

		emit, ok := emitters[b.Type]
		if !ok {
			e.warn("unknown block type %q (%s)", b.Type, b.ID)
			b = e.next(b, models.PortOut)
			continue
		}
		b = emit(e, b, depth, stop)
	}
}

// body walks an indented block and writes pass when it stays empty.
func (e *emitter) body(b *models.Block, depth int, stop map[string]bool) {
	before := e.w.count
	e.walk(b, depth, stop)
	if e.w.count == before {
		e.w.line(depth, "pass")
	}
}

func with(stop map[string]bool, ids ...string) map[string]bool {
	out := make(map[string]bool, len(stop)+len(ids))
	for k := range stop {
		out[k] = true
	}
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// reach returns every block reachable from b, in breadth-first order,
// without entering a block in skip.
func (e *emitter) reach(b *models.Block, skip map[string]bool) []*models.Block {
	var order []*models.Block
	seen := make(map[string]bool)
	queue := []*models.Block{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == nil || seen[cur.ID] || skip[cur.ID] {
			continue
		}
		seen[cur.ID] = true
		order = append(order, cur)
		for _, port := range outPorts {
			queue = append(queue, e.next(cur, port))
		}
	}
	return order
}

// join finds the first block both branches lead to.
func (e *emitter) join(a, b *models.Block, skip map[string]bool) *models.Block {
	if a == nil || b == nil {
		return nil
	}
	fromB := make(map[string]bool)
	for _, n := range e.reach(b, skip) {
		fromB[n.ID] = true
	}
	for _, n := range e.reach(a, skip) {
		if fromB[n.ID] {
			return n
		}
	}
	return nil
}

// device resolves a device operand or warns.
func (e *emitter) device(b *models.Block, name string) (string, bool) {
	if id, ok := e.names.device(name); ok {
		return id, true
	}
	e.warn("%s %s: unknown device %q", b.Type, b.ID, name)
	return "", false
}

// operand resolves a condition operand; devices read their pin.
func (e *emitter) operand(name string) string {
	if id, ok := e.names.variable(name); ok {
		return id
	}
	if id, ok := e.names.device(name); ok {
		return e.d.Read(id)
	}
	return literal(name)
}

// comparisonOperator maps a relational token, defaulting to ==.
func comparisonOperator(op string) string {
	for _, known := range models.ComparisonOperators {
		if op == known {
			return op
		}
	}
	return "=="
}

func (e *emitter) compare(v1, op, v2 string) string {
	return fmt.Sprintf("%s %s %s", e.operand(v1), comparisonOperator(op), e.operand(v2))
}

// ifCondition folds the extra conditions left to right.
func (e *emitter) ifCondition(p *models.IfParams) string {
	expr := e.compare(p.Value1Name, p.Operator, p.Value2Name)
	n := p.Conditions.Len()
	for i := 0; i < n; i++ {
		c := e.compare(p.Conditions.Value1Names[i], p.Conditions.Operators[i], p.Conditions.Value2Names[i])
		expr = fmt.Sprintf("(%s) %s (%s)", expr, p.Conditions.Combiners[i], c)
	}
	return expr
}

func seconds(ms int) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
}

func emitStart(e *emitter, b *models.Block, _ int, _ map[string]bool) *models.Block {
	return e.next(b, models.PortOut)
}

func emitEnd(*emitter, *models.Block, int, map[string]bool) *models.Block {
	return nil
}

func emitTimer(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.TimerParams)
	e.w.line(depth, "time.sleep(%s)", seconds(p.SleepTime))
	return e.next(b, models.PortOut)
}

func emitBlink(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.BlinkParams)
	if dev, ok := e.device(b, p.Value1Name); ok {
		e.w.line(depth, "for _ in range(2):")
		e.w.line(depth+1, "%s", e.d.Toggle(dev))
		e.w.line(depth+1, "time.sleep(%s)", seconds(p.SleepTime))
	}
	return e.next(b, models.PortOut)
}

func emitToggle(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.DeviceParams)
	if dev, ok := e.device(b, p.Value1Name); ok {
		e.w.line(depth, "%s", e.d.Toggle(dev))
	}
	return e.next(b, models.PortOut)
}

func emitSwitch(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.SwitchParams)
	if dev, ok := e.device(b, p.Value1Name); ok {
		e.w.line(depth, "%s", e.d.Write(dev, p.SwitchState))
	}
	return e.next(b, models.PortOut)
}

func emitButton(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.DeviceParams)
	if dev, ok := e.device(b, p.Value1Name); ok {
		e.w.lines(depth, e.d.WaitPressed(dev))
	}
	return e.next(b, models.PortOut)
}

func emitPWM(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.PWMParams)
	if dev, ok := e.device(b, p.Value1Name); ok {
		e.w.line(depth, "%s", e.d.Duty(dev, strconv.Itoa(p.PWMValue)))
	}
	return e.next(b, models.PortOut)
}

func emitRGB(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.RGBParams)
	channels := [][2]string{
		{p.FirstVars.R, p.SecondVars.R},
		{p.FirstVars.G, p.SecondVars.G},
		{p.FirstVars.B, p.SecondVars.B},
	}
	for _, ch := range channels {
		if ch[0] == "" {
			continue
		}
		if dev, ok := e.device(b, ch[0]); ok {
			e.w.line(depth, "%s", e.d.Duty(dev, e.names.value(ch[1])))
		}
	}
	return e.next(b, models.PortOut)
}

func emitIf(e *emitter, b *models.Block, depth int, stop map[string]bool) *models.Block {
	p := b.Params.(*models.IfParams)
	yes, no := e.next(b, models.PortOut1), e.next(b, models.PortOut2)
	join := e.join(yes, no, with(stop, b.ID))

	inner := stop
	if join != nil {
		inner = with(stop, join.ID)
	}
	e.w.line(depth, "if %s:", e.ifCondition(p))
	e.body(yes, depth+1, inner)
	if no != nil && !inner[no.ID] {
		e.w.line(depth, "else:")
		e.body(no, depth+1, inner)
	}
	return join
}

func emitWhile(e *emitter, b *models.Block, depth int, stop map[string]bool) *models.Block {
	p := b.Params.(*models.ConditionParams)
	e.w.line(depth, "while %s:", e.compare(p.Value1Name, p.Operator, p.Value2Name))
	e.body(e.next(b, models.PortOut1), depth+1, with(stop, b.ID))
	return e.exit(b)
}

func emitWhileTrue(e *emitter, b *models.Block, depth int, stop map[string]bool) *models.Block {
	e.w.line(depth, "while True:")
	e.body(e.next(b, models.PortOut), depth+1, with(stop, b.ID))
	return nil
}

func emitForLoop(e *emitter, b *models.Block, depth int, stop map[string]bool) *models.Block {
	p := b.Params.(*models.ForLoopParams)
	e.w.line(depth, "for _ in range(int(%s)):", e.names.value(p.Value1Name))
	e.body(e.next(b, models.PortOut1), depth+1, with(stop, b.ID))
	return e.exit(b)
}

func (e *emitter) result(b *models.Block, name string) (string, bool) {
	if id, ok := e.names.variable(name); ok {
		return id, true
	}
	e.warn("%s %s: result %q is not a variable", b.Type, b.ID, name)
	return "", false
}

func emitArithmetic(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.ArithmeticParams)
	res, ok := e.result(b, p.ResultVarName)
	if !ok {
		return e.next(b, models.PortOut)
	}
	v1, v2 := e.names.value(p.Value1Name), e.names.value(p.Value2Name)
	var expr string
	switch p.Operator {
	case "^":
		expr = fmt.Sprintf("%s ** %s", v1, v2)
	case "√":
		expr = fmt.Sprintf("%s ** (1 / %s)", v1, v2)
	default:
		expr = fmt.Sprintf("%s %s %s", v1, p.Operator, v2)
	}
	e.w.line(depth, "%s = %s", res, expr)
	return e.next(b, models.PortOut)
}

func emitRandom(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.RandomParams)
	if res, ok := e.result(b, p.ResultVarName); ok {
		e.w.line(depth, "%s = random.randint(int(%s), int(%s))", res, e.names.value(p.Value1Name), e.names.value(p.Value2Name))
	}
	return e.next(b, models.PortOut)
}

func emitNetworks(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.NetworksParams)
	e.w.lines(depth, e.d.Networks(p.SSIDs, p.Passwords))
	return e.next(b, models.PortOut)
}

// emitCall passes bound caller values by keyword and copies bound
// variables back from the returned dict.
func emitCall(e *emitter, b *models.Block, depth int, _ map[string]bool) *models.Block {
	p := b.Params.(*models.FunctionParams)
	f, ok := e.funcs[p.Name]
	if !ok {
		e.warn("Function %s: no function canvas named %q", b.ID, p.Name)
		return e.next(b, models.PortOut)
	}

	var args, writeback []string
	for _, pair := range p.InternalVars.Pairs() {
		caller, formal := pair[0], pair[1]
		param, ok := f.names.variable(formal)
		if !ok {
			e.warn("Function %s: %q is not a variable of %s", b.ID, formal, p.Name)
			continue
		}
		args = append(args, fmt.Sprintf("%s=%s", param, e.names.value(caller)))
		if id, ok := e.names.variable(caller); ok {
			writeback = append(writeback, fmt.Sprintf("%s = __ret[%s]", id, pyQuote(formal)))
		}
	}
	for _, pair := range p.InternalDevs.Pairs() {
		caller, formal := pair[0], pair[1]
		param, ok := f.names.devs[formal]
		if !ok {
			e.warn("Function %s: %q is not a device of %s", b.ID, formal, p.Name)
			continue
		}
		if dev, ok := e.device(b, caller); ok {
			args = append(args, fmt.Sprintf("%s=%s", param, dev))
		}
	}

	call := fmt.Sprintf("%s(%s)", f.ident, strings.Join(args, ", "))
	if len(writeback) == 0 {
		e.w.line(depth, "%s", call)
	} else {
		e.w.line(depth, "__ret = %s", call)
		e.w.lines(depth, writeback)
	}
	return e.next(b, models.PortOut)
}
