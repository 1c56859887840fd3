package classforge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/classforge/classforge/internal/asm"
	"github.com/classforge/classforge/internal/classfile"
	"github.com/classforge/classforge/internal/constpool"
	"github.com/classforge/classforge/internal/typesys"
)

// ClassMaker builds one class. Modifier setters return the ClassMaker so
// they can be chained, and have no effect once the class is finished.
type ClassMaker struct {
	ctx  *Context
	typ  *Type
	pool *constpool.Pool
	mods typesys.Modifiers

	fields      []*FieldMaker
	methods     []*MethodMaker
	clinit      *MethodMaker
	sourceFile  string
	nestHost    string
	nestMembers []string

	finished bool
}

func newClassMaker(ctx *Context, t *Type) *ClassMaker {
	return &ClassMaker{ctx: ctx, typ: t, pool: constpool.New()}
}

// Type returns the type of the class being generated.
func (c *ClassMaker) Type() *Type {
	return c.typ
}

// Name returns the binary name of the class, such as "org.example.Point".
func (c *ClassMaker) Name() string {
	return c.typ.Name()
}

func (c *ClassMaker) Public() *ClassMaker {
	c.mods = c.mods.Visibility(typesys.ModPublic)
	return c
}

func (c *ClassMaker) Final() *ClassMaker {
	c.mods |= typesys.ModFinal
	return c
}

// Interface turns the class into an interface, which is also abstract.
func (c *ClassMaker) Interface() *ClassMaker {
	c.mods |= typesys.ModInterface | typesys.ModAbstract
	c.typ.SetInterface()
	return c
}

func (c *ClassMaker) Abstract() *ClassMaker {
	c.mods |= typesys.ModAbstract
	return c
}

func (c *ClassMaker) Synthetic() *ClassMaker {
	c.mods |= typesys.ModSynthetic
	return c
}

// Implement adds an implemented interface.
func (c *ClassMaker) Implement(iface interface{}) error {
	if c.finished {
		return ErrFinished
	}
	t, err := c.ctx.typeOf(iface)
	if err != nil {
		return err
	}
	if t.IsPrimitive() || t.IsArray() {
		return fmt.Errorf("%w: %s is not an interface", ErrNotReference, t)
	}
	c.typ.AddInterface(t)
	return nil
}

// SourceFile sets the SourceFile attribute.
func (c *ClassMaker) SourceFile(name string) *ClassMaker {
	c.sourceFile = name
	return c
}

// NestHost sets the NestHost attribute, making this class a nest member.
func (c *ClassMaker) NestHost(host interface{}) error {
	t, err := c.ctx.typeOf(host)
	if err != nil {
		return err
	}
	c.nestHost = t.InternalName()
	return nil
}

// NestMember adds a class to the NestMembers attribute of this nest host.
func (c *ClassMaker) NestMember(member interface{}) error {
	t, err := c.ctx.typeOf(member)
	if err != nil {
		return err
	}
	c.nestMembers = append(c.nestMembers, t.InternalName())
	return nil
}

// AddField declares a field of the given type. Fields are private unless a
// visibility modifier is set.
func (c *ClassMaker) AddField(typ interface{}, name string) (*FieldMaker, error) {
	if c.finished {
		return nil, ErrFinished
	}
	t, err := c.ctx.typeOf(typ)
	if err != nil {
		return nil, err
	}
	if t.Kind() == typesys.KindVoid {
		return nil, fmt.Errorf("%w: field %s is void", ErrBadOperand, name)
	}
	if c.typ.DeclaredField(name) != nil {
		return nil, fmt.Errorf("%w: field %s", ErrConflictingMember, name)
	}
	f, err := c.typ.DefineField(0, t, name)
	if err != nil {
		return nil, err
	}
	fm := &FieldMaker{c: c, f: f}
	c.fields = append(c.fields, fm)
	return fm, nil
}

// AddMethod declares a method. ret and params are types, as accepted by
// Context.Type, or *Type and *ClassMaker values.
func (c *ClassMaker) AddMethod(ret interface{}, name string, params ...interface{}) (*MethodMaker, error) {
	if c.finished {
		return nil, ErrFinished
	}
	if name == "<init>" || name == "<clinit>" {
		return nil, fmt.Errorf("%w: use AddConstructor or AddClinit for %s", ErrBadOperand, name)
	}
	rt, err := c.ctx.typeOf(ret)
	if err != nil {
		return nil, err
	}
	return c.addMethod(0, rt, name, params)
}

// AddConstructor declares a constructor. Its body must invoke a super or
// this constructor.
func (c *ClassMaker) AddConstructor(params ...interface{}) (*MethodMaker, error) {
	if c.finished {
		return nil, ErrFinished
	}
	return c.addMethod(0, c.ctx.reg.Void, "<init>", params)
}

// AddClinit returns the static initializer, adding it on the first call.
func (c *ClassMaker) AddClinit() (*MethodMaker, error) {
	if c.finished {
		return nil, ErrFinished
	}
	if c.clinit == nil {
		m, err := c.addMethod(typesys.ModStatic, c.ctx.reg.Void, "<clinit>", nil)
		if err != nil {
			return nil, err
		}
		c.clinit = m
	}
	return c.clinit, nil
}

func (c *ClassMaker) addMethod(mods typesys.Modifiers, ret *Type, name string, params []interface{}) (*MethodMaker, error) {
	pt, err := c.ctx.typesOf(params)
	if err != nil {
		return nil, err
	}
	for _, p := range pt {
		if p.Kind() == typesys.KindVoid {
			return nil, fmt.Errorf("%w: void parameter of %s", ErrBadOperand, name)
		}
	}
	// The receiver is counted by Finish, once the method can no longer be
	// made static.
	if n := asm.ParamSlots(true, pt); n > asm.MaxParamSlots {
		return nil, fmt.Errorf("%w: %s takes %d", ErrTooManyParams, name, n)
	}
	desc := typesys.MethodDescriptor(ret, pt)
	for _, m := range c.methods {
		if m.name == name && m.method.Descriptor() == desc {
			return nil, fmt.Errorf("%w: %s", ErrConflictingMember, m.method)
		}
	}

	var method *typesys.Method
	if name == "<clinit>" {
		// Never resolvable, so it isn't registered with the type.
		method, err = c.typ.InventMethod(mods, ret, name, pt...)
	} else {
		method, err = c.typ.DefineMethod(mods, ret, name, pt...)
	}
	if err != nil {
		return nil, err
	}
	m := &MethodMaker{c: c, name: name, method: method, ret: ret, params: pt}
	c.methods = append(c.methods, m)
	return m, nil
}

// Finish finishes every method and returns the class file. The ClassMaker
// cannot be changed afterwards.
func (c *ClassMaker) Finish() ([]byte, error) {
	if c.finished {
		return nil, ErrFinished
	}
	c.finished = true
	cfg := c.ctx.cfg

	cls := &classfile.Class{
		Pool:        c.pool,
		Major:       cfg.major,
		Flags:       int(c.mods),
		This:        c.typ.InternalName(),
		SourceFile:  c.sourceFile,
		NestHost:    c.nestHost,
		NestMembers: c.nestMembers,
	}
	if s := c.typ.Super(); s != nil {
		cls.Super = s.InternalName()
	}
	for _, i := range c.typ.Interfaces() {
		cls.Interfaces = append(cls.Interfaces, i.InternalName())
	}
	if cls.SourceFile == "" && cfg.sourceFile {
		cls.SourceFile = simpleName(c.typ.Name()) + ".java"
	}

	for _, f := range c.fields {
		cls.Fields = append(cls.Fields, classfile.Field{
			Flags:         int(f.f.Mods),
			Name:          f.f.Name(),
			Desc:          f.f.Type().Descriptor(),
			ConstantValue: f.constant,
		})
	}
	for _, m := range c.methods {
		cm, err := m.finish()
		if err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", c.typ.Name(), m.name, m.method.Descriptor(), err)
		}
		cls.Methods = append(cls.Methods, cm)
	}

	b, err := cls.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.typ.Name(), err)
	}
	cfg.log().Debug("finished class",
		zap.String("class", c.typ.Name()),
		zap.Int("bytes", len(b)),
		zap.Int("constants", c.pool.Size()-1),
		zap.Int("methods", len(cls.Methods)))

	if cfg.debugDir != "" {
		if err = writeDebugFile(cfg.debugDir, cls.This, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// FinishTo finishes the class and writes the class file to w.
func (c *ClassMaker) FinishTo(w io.Writer) error {
	b, err := c.Finish()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func writeDebugFile(dir, internalName string, b []byte) error {
	path := filepath.Join(dir, filepath.FromSlash(internalName)+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("debug dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("debug dir: %w", err)
	}
	return nil
}

func simpleName(name string) string {
	name = name[strings.LastIndexByte(name, '.')+1:]
	if i := strings.IndexByte(name, '$'); i >= 0 {
		name = name[:i]
	}
	return name
}

// FieldMaker declares one field. Modifier setters return the FieldMaker so
// they can be chained.
type FieldMaker struct {
	c        *ClassMaker
	f        *typesys.Field
	constant int
}

func (f *FieldMaker) Name() string {
	return f.f.Name()
}

func (f *FieldMaker) Type() *Type {
	return f.f.Type()
}

func (f *FieldMaker) Public() *FieldMaker {
	f.f.Mods = f.f.Mods.Visibility(typesys.ModPublic)
	return f
}

func (f *FieldMaker) Private() *FieldMaker {
	f.f.Mods = f.f.Mods.Visibility(typesys.ModPrivate)
	return f
}

func (f *FieldMaker) Protected() *FieldMaker {
	f.f.Mods = f.f.Mods.Visibility(typesys.ModProtected)
	return f
}

func (f *FieldMaker) Static() *FieldMaker {
	f.f.Mods |= typesys.ModStatic
	return f
}

func (f *FieldMaker) Final() *FieldMaker {
	f.f.Mods |= typesys.ModFinal
	return f
}

func (f *FieldMaker) Volatile() *FieldMaker {
	f.f.Mods |= typesys.ModVolatile
	return f
}

func (f *FieldMaker) Transient() *FieldMaker {
	f.f.Mods |= typesys.ModTransient
	return f
}

func (f *FieldMaker) Synthetic() *FieldMaker {
	f.f.Mods |= typesys.ModSynthetic
	return f
}

// InitExact gives a static final field a constant initial value, written as
// a ConstantValue attribute. The value must be a Go constant exactly
// representable in the field type, or a string for String fields.
func (f *FieldMaker) InitExact(value interface{}) error {
	if f.c.finished {
		return ErrFinished
	}
	const sf = typesys.ModStatic | typesys.ModFinal
	if f.f.Mods&sf != sf {
		return fmt.Errorf("%w: %s must be static final", ErrBadOperand, f.f.Name())
	}
	val, ok := exactConstant(value, f.f.Type(), f.c.ctx.reg)
	if !ok {
		return fmt.Errorf("%w: %v to %s", ErrNoConversion, value, f.f.Type())
	}

	p := f.c.pool
	switch v := val.(type) {
	case int32:
		f.constant = p.AddInt(v)
	case int64:
		f.constant = p.AddLong(v)
	case float32:
		f.constant = p.AddFloat(v)
	case float64:
		f.constant = p.AddDouble(v)
	case string:
		f.constant = p.AddString(v)
	default:
		return fmt.Errorf("%w: %v to %s", ErrNoConversion, value, f.f.Type())
	}
	return nil
}
