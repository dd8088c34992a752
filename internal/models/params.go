package models

import "fmt"

// Parameter keys as they appear in block records.
const (
	KeySleepTime     = "sleep_time"
	KeyValue1Name    = "value_1_name"
	KeyValue1Type    = "value_1_type"
	KeyValue2Name    = "value_2_name"
	KeyValue2Type    = "value_2_type"
	KeyOperator      = "operator"
	KeyResultVarName = "result_var_name"
	KeySwitchState   = "switch_state"
	KeyPWMValue      = "PWM_value"
	KeyFirstVars     = "first_vars"
	KeySecondVars    = "second_vars"
	KeyConditions    = "conditions"
	KeyNetworks      = "networks"
	KeySSIDs         = "ssids"
	KeyPasswords     = "passwords"
	KeyName          = "name"
	KeyInternalVars  = "internal_vars"
	KeyInternalDevs  = "internal_devs"
)

// Operator sets per block family. The first entry is the default.
var (
	ComparisonOperators  = []string{"==", "!=", "<", ">", "<=", ">="}
	BasicOperators       = []string{"+", "-", "*", "/", "%"}
	ExponentialOperators = []string{"^", "√"}
	Combiners            = []string{"and", "or"}
)

// Params is the type-dependent parameter record of a block. Each block type
// has exactly one concrete implementation; see NewParams.
type Params interface {
	// Keys lists the legal keys in serialization order.
	Keys() []string
	Get(key string) (any, bool)
	// Set writes a key, clamping out-of-range values. It fails only for keys
	// that are not legal for the type or values of the wrong shape.
	Set(key string, value any) error
	Clone() Params
}

// NewParams returns the default parameter record for t.
func NewParams(t BlockType) Params {
	switch t {
	case BlockTimer:
		return &TimerParams{SleepTime: DefaultSleepTime}
	case BlockBlinkLED:
		return &BlinkParams{SleepTime: DefaultSleepTime}
	case BlockToggleLED, BlockButton:
		return &DeviceParams{}
	case BlockPWMLED:
		return &PWMParams{}
	case BlockRGBLED:
		return &RGBParams{}
	case BlockSwitch:
		return &SwitchParams{}
	case BlockIf:
		return &IfParams{ConditionParams: ConditionParams{Operator: ComparisonOperators[0]}}
	case BlockWhile:
		return &ConditionParams{Operator: ComparisonOperators[0]}
	case BlockForLoop:
		return &ForLoopParams{}
	case BlockBasicOperations:
		return &ArithmeticParams{Operator: BasicOperators[0]}
	case BlockExponentialOperations:
		return &ArithmeticParams{Exponential: true, Operator: ExponentialOperators[0]}
	case BlockRandomNumber:
		return &RandomParams{}
	case BlockNetworks:
		return &NetworksParams{}
	case BlockFunction:
		return &FunctionParams{}
	}
	return &NoParams{}
}

func unknownKey(key string) error {
	return fmt.Errorf("%w: %s", ErrUnknownParam, key)
}

func pickOperator(v any, allowed []string) string {
	s := toString(v)
	for _, op := range allowed {
		if op == s {
			return op
		}
	}
	return allowed[0]
}

// NoParams is used by Start, End and While_true.
type NoParams struct{}

func (p *NoParams) Keys() []string              { return nil }
func (p *NoParams) Get(string) (any, bool)      { return nil, false }
func (p *NoParams) Set(key string, _ any) error { return unknownKey(key) }
func (p *NoParams) Clone() Params               { return &NoParams{} }

// TimerParams holds the delay of a Timer block.
type TimerParams struct {
	SleepTime int
}

func (p *TimerParams) Keys() []string { return []string{KeySleepTime} }

func (p *TimerParams) Get(key string) (any, bool) {
	if key == KeySleepTime {
		return p.SleepTime, true
	}
	return nil, false
}

func (p *TimerParams) Set(key string, v any) error {
	if key != KeySleepTime {
		return unknownKey(key)
	}
	p.SleepTime = sleepValue(v)
	return nil
}

func (p *TimerParams) Clone() Params { c := *p; return &c }

func sleepValue(v any) int {
	ms, ok := toInt(v)
	if !ok {
		return DefaultSleepTime
	}
	return ClampSleep(ms)
}

// DeviceParams binds a block to one device (Toggle_LED, Button).
type DeviceParams struct {
	Value1Name string
}

func (p *DeviceParams) Keys() []string { return []string{KeyValue1Name} }

func (p *DeviceParams) Get(key string) (any, bool) {
	if key == KeyValue1Name {
		return p.Value1Name, true
	}
	return nil, false
}

func (p *DeviceParams) Set(key string, v any) error {
	if key != KeyValue1Name {
		return unknownKey(key)
	}
	p.Value1Name = toString(v)
	return nil
}

func (p *DeviceParams) Clone() Params { c := *p; return &c }

// BlinkParams holds the device and half-period of a Blink_LED block.
type BlinkParams struct {
	Value1Name string
	SleepTime  int
}

func (p *BlinkParams) Keys() []string { return []string{KeyValue1Name, KeySleepTime} }

func (p *BlinkParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeySleepTime:
		return p.SleepTime, true
	}
	return nil, false
}

func (p *BlinkParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeySleepTime:
		p.SleepTime = sleepValue(v)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *BlinkParams) Clone() Params { c := *p; return &c }

// PWMParams holds the device and duty value of a PWM_LED block.
type PWMParams struct {
	Value1Name string
	PWMValue   int
}

func (p *PWMParams) Keys() []string { return []string{KeyValue1Name, KeyPWMValue} }

func (p *PWMParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeyPWMValue:
		return p.PWMValue, true
	}
	return nil, false
}

func (p *PWMParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeyPWMValue:
		n, _ := toInt(v)
		p.PWMValue = ClampPWM(n)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *PWMParams) Clone() Params { c := *p; return &c }

// RGBChannels holds one string per color channel.
type RGBChannels struct {
	R string
	G string
	B string
}

func (c RGBChannels) record() Record {
	return Record{{"R", c.R}, {"G", c.G}, {"B", c.B}}
}

func rgbFrom(v any) (RGBChannels, bool) {
	obj, ok := asObject(v)
	if !ok {
		return RGBChannels{}, false
	}
	return RGBChannels{R: toString(obj["R"]), G: toString(obj["G"]), B: toString(obj["B"])}, true
}

// RGBParams binds the three channels of an RGB_LED block: FirstVars names
// the device per channel, SecondVars the value (0..255 or a variable name).
type RGBParams struct {
	FirstVars  RGBChannels
	SecondVars RGBChannels
}

func (p *RGBParams) Keys() []string { return []string{KeyFirstVars, KeySecondVars} }

func (p *RGBParams) Get(key string) (any, bool) {
	switch key {
	case KeyFirstVars:
		return p.FirstVars.record(), true
	case KeySecondVars:
		return p.SecondVars.record(), true
	}
	return nil, false
}

func (p *RGBParams) Set(key string, v any) error {
	ch, ok := rgbFrom(v)
	switch key {
	case KeyFirstVars:
		if !ok {
			return fmt.Errorf("%s: expected object", key)
		}
		p.FirstVars = ch
	case KeySecondVars:
		if !ok {
			return fmt.Errorf("%s: expected object", key)
		}
		p.SecondVars = ch
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *RGBParams) Clone() Params { c := *p; return &c }

// SwitchParams drives a device HIGH (on) or LOW (off).
type SwitchParams struct {
	Value1Name  string
	SwitchState bool
}

// State returns "on" or "off".
func (p *SwitchParams) State() string {
	if p.SwitchState {
		return "on"
	}
	return "off"
}

func (p *SwitchParams) Keys() []string { return []string{KeyValue1Name, KeySwitchState} }

func (p *SwitchParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeySwitchState:
		return p.State(), true
	}
	return nil, false
}

func (p *SwitchParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeySwitchState:
		p.SwitchState = toOnOff(v)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *SwitchParams) Clone() Params { c := *p; return &c }

// ConditionParams is a single `value_1 operator value_2` comparison (While).
type ConditionParams struct {
	Value1Name string
	Value1Type string
	Operator   string
	Value2Name string
	Value2Type string
}

func (p *ConditionParams) Keys() []string {
	return []string{KeyValue1Name, KeyValue1Type, KeyOperator, KeyValue2Name, KeyValue2Type}
}

func (p *ConditionParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeyValue1Type:
		return p.Value1Type, true
	case KeyOperator:
		return p.Operator, true
	case KeyValue2Name:
		return p.Value2Name, true
	case KeyValue2Type:
		return p.Value2Type, true
	}
	return nil, false
}

func (p *ConditionParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeyValue1Type:
		p.Value1Type = toString(v)
	case KeyOperator:
		p.Operator = pickOperator(v, ComparisonOperators)
	case KeyValue2Name:
		p.Value2Name = toString(v)
	case KeyValue2Type:
		p.Value2Type = toString(v)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *ConditionParams) Clone() Params { c := *p; return &c }

// Conditions are the extra comparisons of an If block, kept as parallel
// arrays. Combiners[i] joins condition i+1 to everything before it.
type Conditions struct {
	Value1Names []string
	Operators   []string
	Value2Names []string
	Combiners   []string
}

// Len returns the number of complete extra conditions.
func (c Conditions) Len() int {
	n := len(c.Value1Names)
	for _, l := range []int{len(c.Operators), len(c.Value2Names), len(c.Combiners)} {
		if l < n {
			n = l
		}
	}
	return n
}

func (c Conditions) clone() Conditions {
	return Conditions{
		Value1Names: cloneStrings(c.Value1Names),
		Operators:   cloneStrings(c.Operators),
		Value2Names: cloneStrings(c.Value2Names),
		Combiners:   cloneStrings(c.Combiners),
	}
}

func (c Conditions) record() Record {
	return Record{
		{"value_1_names", nonNil(c.Value1Names)},
		{"operators", nonNil(c.Operators)},
		{"value_2_names", nonNil(c.Value2Names)},
		{"combiners", nonNil(c.Combiners)},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// IfParams extends the primary comparison with optional extra conditions.
type IfParams struct {
	ConditionParams
	Conditions Conditions
}

func (p *IfParams) Keys() []string {
	return append(p.ConditionParams.Keys(), KeyConditions)
}

func (p *IfParams) Get(key string) (any, bool) {
	if key == KeyConditions {
		return p.Conditions.record(), true
	}
	return p.ConditionParams.Get(key)
}

func (p *IfParams) Set(key string, v any) error {
	if key != KeyConditions {
		return p.ConditionParams.Set(key, v)
	}
	obj, ok := asObject(v)
	if !ok {
		return fmt.Errorf("%s: expected object", key)
	}
	var c Conditions
	c.Value1Names, _ = toStrings(obj["value_1_names"])
	ops, _ := toStrings(obj["operators"])
	for _, op := range ops {
		c.Operators = append(c.Operators, pickOperator(op, ComparisonOperators))
	}
	c.Value2Names, _ = toStrings(obj["value_2_names"])
	comb, _ := toStrings(obj["combiners"])
	for _, cb := range comb {
		c.Combiners = append(c.Combiners, pickOperator(cb, Combiners))
	}
	p.Conditions = c
	return nil
}

func (p *IfParams) Clone() Params {
	return &IfParams{ConditionParams: p.ConditionParams, Conditions: p.Conditions.clone()}
}

// ForLoopParams repeats its body value_1 times.
type ForLoopParams struct {
	Value1Name string
	Value1Type string
}

func (p *ForLoopParams) Keys() []string { return []string{KeyValue1Name, KeyValue1Type} }

func (p *ForLoopParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeyValue1Type:
		return p.Value1Type, true
	}
	return nil, false
}

func (p *ForLoopParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeyValue1Type:
		p.Value1Type = toString(v)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *ForLoopParams) Clone() Params { c := *p; return &c }

// ArithmeticParams computes result := value_1 operator value_2.
// Exponential selects the ^/√ operator set instead of + - * / %.
type ArithmeticParams struct {
	Exponential   bool
	Value1Name    string
	Value1Type    string
	Operator      string
	Value2Name    string
	Value2Type    string
	ResultVarName string
}

func (p *ArithmeticParams) Keys() []string {
	return []string{KeyValue1Name, KeyValue1Type, KeyOperator, KeyValue2Name, KeyValue2Type, KeyResultVarName}
}

func (p *ArithmeticParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeyValue1Type:
		return p.Value1Type, true
	case KeyOperator:
		return p.Operator, true
	case KeyValue2Name:
		return p.Value2Name, true
	case KeyValue2Type:
		return p.Value2Type, true
	case KeyResultVarName:
		return p.ResultVarName, true
	}
	return nil, false
}

func (p *ArithmeticParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeyValue1Type:
		p.Value1Type = toString(v)
	case KeyOperator:
		if p.Exponential {
			p.Operator = pickOperator(v, ExponentialOperators)
		} else {
			p.Operator = pickOperator(v, BasicOperators)
		}
	case KeyValue2Name:
		p.Value2Name = toString(v)
	case KeyValue2Type:
		p.Value2Type = toString(v)
	case KeyResultVarName:
		p.ResultVarName = toString(v)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *ArithmeticParams) Clone() Params { c := *p; return &c }

// RandomParams draws result from the inclusive range [value_1, value_2].
type RandomParams struct {
	Value1Name    string
	Value1Type    string
	Value2Name    string
	Value2Type    string
	ResultVarName string
}

func (p *RandomParams) Keys() []string {
	return []string{KeyValue1Name, KeyValue1Type, KeyValue2Name, KeyValue2Type, KeyResultVarName}
}

func (p *RandomParams) Get(key string) (any, bool) {
	switch key {
	case KeyValue1Name:
		return p.Value1Name, true
	case KeyValue1Type:
		return p.Value1Type, true
	case KeyValue2Name:
		return p.Value2Name, true
	case KeyValue2Type:
		return p.Value2Type, true
	case KeyResultVarName:
		return p.ResultVarName, true
	}
	return nil, false
}

func (p *RandomParams) Set(key string, v any) error {
	switch key {
	case KeyValue1Name:
		p.Value1Name = toString(v)
	case KeyValue1Type:
		p.Value1Type = toString(v)
	case KeyValue2Name:
		p.Value2Name = toString(v)
	case KeyValue2Type:
		p.Value2Type = toString(v)
	case KeyResultVarName:
		p.ResultVarName = toString(v)
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *RandomParams) Clone() Params { c := *p; return &c }

// NetworksParams lists Wi-Fi credentials as parallel SSID/password rows.
type NetworksParams struct {
	SSIDs     []string
	Passwords []string
}

// Count returns the number of rows.
func (p *NetworksParams) Count() int {
	return len(p.SSIDs)
}

func (p *NetworksParams) Keys() []string { return []string{KeyNetworks, KeySSIDs, KeyPasswords} }

func (p *NetworksParams) Get(key string) (any, bool) {
	switch key {
	case KeyNetworks:
		return p.Count(), true
	case KeySSIDs:
		return nonNil(p.SSIDs), true
	case KeyPasswords:
		return nonNil(p.Passwords), true
	}
	return nil, false
}

func (p *NetworksParams) Set(key string, v any) error {
	switch key {
	case KeyNetworks:
		n, _ := toInt(v)
		if n < 0 {
			n = 0
		}
		p.resize(n)
	case KeySSIDs:
		s, ok := toStrings(v)
		if !ok {
			return fmt.Errorf("%s: expected array", key)
		}
		p.SSIDs = s
		p.resize(len(s))
	case KeyPasswords:
		s, ok := toStrings(v)
		if !ok {
			return fmt.Errorf("%s: expected array", key)
		}
		p.Passwords = s
		p.resize(len(p.SSIDs))
	default:
		return unknownKey(key)
	}
	return nil
}

// resize keeps SSIDs and Passwords at n rows each.
func (p *NetworksParams) resize(n int) {
	fit := func(s []string) []string {
		for len(s) < n {
			s = append(s, "")
		}
		return s[:n]
	}
	p.SSIDs = fit(p.SSIDs)
	p.Passwords = fit(p.Passwords)
}

func (p *NetworksParams) Clone() Params {
	return &NetworksParams{SSIDs: cloneStrings(p.SSIDs), Passwords: cloneStrings(p.Passwords)}
}

// Bindings maps caller-scope names (Main) onto a function's formal names (Ref)
// by position.
type Bindings struct {
	Main []string
	Ref  []string
}

// Pairs returns the (main, ref) pairs up to the shorter list.
func (b Bindings) Pairs() [][2]string {
	n := len(b.Main)
	if len(b.Ref) < n {
		n = len(b.Ref)
	}
	out := make([][2]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, [2]string{b.Main[i], b.Ref[i]})
	}
	return out
}

func (b Bindings) clone() Bindings {
	return Bindings{Main: cloneStrings(b.Main), Ref: cloneStrings(b.Ref)}
}

func bindingsFrom(v any, mainKey, refKey string) (Bindings, bool) {
	obj, ok := asObject(v)
	if !ok {
		return Bindings{}, false
	}
	m, _ := toStrings(obj[mainKey])
	r, _ := toStrings(obj[refKey])
	return Bindings{Main: m, Ref: r}, true
}

// FunctionParams calls the function canvas called Name.
type FunctionParams struct {
	Name         string
	InternalVars Bindings
	InternalDevs Bindings
}

func (p *FunctionParams) Keys() []string { return []string{KeyName, KeyInternalVars, KeyInternalDevs} }

func (p *FunctionParams) Get(key string) (any, bool) {
	switch key {
	case KeyName:
		return p.Name, true
	case KeyInternalVars:
		return Record{{"main_vars", nonNil(p.InternalVars.Main)}, {"ref_vars", nonNil(p.InternalVars.Ref)}}, true
	case KeyInternalDevs:
		return Record{{"main_devs", nonNil(p.InternalDevs.Main)}, {"ref_devs", nonNil(p.InternalDevs.Ref)}}, true
	}
	return nil, false
}

func (p *FunctionParams) Set(key string, v any) error {
	switch key {
	case KeyName:
		p.Name = toString(v)
	case KeyInternalVars:
		b, ok := bindingsFrom(v, "main_vars", "ref_vars")
		if !ok {
			return fmt.Errorf("%s: expected object", key)
		}
		p.InternalVars = b
	case KeyInternalDevs:
		b, ok := bindingsFrom(v, "main_devs", "ref_devs")
		if !ok {
			return fmt.Errorf("%s: expected object", key)
		}
		p.InternalDevs = b
	default:
		return unknownKey(key)
	}
	return nil
}

func (p *FunctionParams) Clone() Params {
	return &FunctionParams{Name: p.Name, InternalVars: p.InternalVars.clone(), InternalDevs: p.InternalDevs.clone()}
}
