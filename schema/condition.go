package schema

import "fmt"

// Condition is a guard evaluated per entity. A guard that fails to evaluate
// suppresses only the descriptor it guards.
type Condition interface {
	Eval(env Env) (bool, error)
	Deps() Deps
}

type attrTrue string

// AttrTrue holds when the boolean attribute is true. Unset counts as false;
// a non-boolean value is an evaluation error.
func AttrTrue(name string) Condition { return attrTrue(name) }

func (c attrTrue) Eval(env Env) (bool, error) {
	v, err := env.attr(string(c))
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrAttributeType, string(c), v)
	}
}

func (c attrTrue) Deps() Deps { return Deps{Attributes: []string{string(c)}} }

type attrPresent string

// AttrPresent holds when the attribute is set.
func AttrPresent(name string) Condition { return attrPresent(name) }

func (c attrPresent) Eval(env Env) (bool, error) {
	v, err := env.attr(string(c))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (c attrPresent) Deps() Deps { return Deps{Attributes: []string{string(c)}} }

type notCond struct{ c Condition }

// Not negates a condition.
func Not(c Condition) Condition { return notCond{c: c} }

func (n notCond) Eval(env Env) (bool, error) {
	ok, err := n.c.Eval(env)
	return !ok && err == nil, err
}

func (n notCond) Deps() Deps { return n.c.Deps() }

type allCond []Condition

// All holds when every condition holds. Evaluation stops at the first false.
func All(cs ...Condition) Condition { return allCond(cs) }

func (a allCond) Eval(env Env) (bool, error) {
	for _, c := range a {
		ok, err := c.Eval(env)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a allCond) Deps() Deps {
	var d Deps
	for _, c := range a {
		d = d.merge(c.Deps())
	}
	return d
}

type anyCond []Condition

// AnyOf holds when at least one condition holds.
func AnyOf(cs ...Condition) Condition { return anyCond(cs) }

func (a anyCond) Eval(env Env) (bool, error) {
	for _, c := range a {
		ok, err := c.Eval(env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (a anyCond) Deps() Deps {
	var d Deps
	for _, c := range a {
		d = d.merge(c.Deps())
	}
	return d
}

type settingCond struct {
	name   string
	value  string
	negate bool
}

// SettingEquals holds when the global setting has the given value.
func SettingEquals(name, value string) Condition {
	return settingCond{name: name, value: value}
}

// SettingNotEquals holds when the global setting differs from value,
// including when it is unset.
func SettingNotEquals(name, value string) Condition {
	return settingCond{name: name, value: value, negate: true}
}

func (c settingCond) Eval(env Env) (bool, error) {
	eq := env.Settings[c.name] == c.value
	return eq != c.negate, nil
}

func (c settingCond) Deps() Deps { return Deps{Settings: []string{c.name}} }

type settingEnabled string

// SettingEnabled holds when the global setting is one of "1", "true", "yes".
func SettingEnabled(name string) Condition { return settingEnabled(name) }

func (c settingEnabled) Eval(env Env) (bool, error) {
	switch env.Settings[string(c)] {
	case "1", "true", "yes":
		return true, nil
	}
	return false, nil
}

func (c settingEnabled) Deps() Deps { return Deps{Settings: []string{string(c)}} }

type viewerWatching struct{}

// ViewerWatching holds when the viewer watches the entity. It depends on the
// viewer and is only allowed on uncacheable descriptors.
func ViewerWatching() Condition { return viewerWatching{} }

func (viewerWatching) Eval(env Env) (bool, error) { return env.Watching, nil }
func (viewerWatching) Deps() Deps { return Deps{Viewer: true} }
