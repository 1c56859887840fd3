package typesys

import (
	"fmt"
	"strings"
)

type builtin struct {
	name, super string
	ifaces      []string
	iface       bool
	methods     []string
}

// builtins declares the part of the platform library the generator itself
// relies on: boxing, string conversion and concatenation, exceptions, and the
// signature polymorphic handles. Callers declare anything else they call.
var builtins = []builtin{
	{name: "java.lang.Object", methods: []string{
		"public <init>()",
		"public boolean equals(java.lang.Object)",
		"public native int hashCode()",
		"public java.lang.String toString()",
		"public final native java.lang.Class getClass()",
	}},
	{name: "java.io.Serializable", iface: true},
	{name: "java.lang.Cloneable", iface: true},
	{name: "java.lang.Comparable", iface: true, methods: []string{
		"public abstract int compareTo(java.lang.Object)",
	}},
	{name: "java.lang.CharSequence", iface: true, methods: []string{
		"public abstract int length()",
		"public abstract char charAt(int)",
	}},
	{name: "java.lang.String", ifaces: []string{"java.io.Serializable", "java.lang.Comparable", "java.lang.CharSequence"}, methods: []string{
		"public <init>()",
		"public int length()",
		"public char charAt(int)",
		"public boolean isEmpty()",
		"public boolean equals(java.lang.Object)",
		"public int hashCode()",
		"public java.lang.String toString()",
		"public java.lang.String concat(java.lang.String)",
		"public static java.lang.String valueOf(java.lang.Object)",
		"public static java.lang.String valueOf(boolean)",
		"public static java.lang.String valueOf(char)",
		"public static java.lang.String valueOf(int)",
		"public static java.lang.String valueOf(long)",
		"public static java.lang.String valueOf(float)",
		"public static java.lang.String valueOf(double)",
	}},
	{name: "java.lang.Class", ifaces: []string{"java.io.Serializable"}, methods: []string{
		"public java.lang.String getName()",
	}},
	{name: "java.lang.Number", ifaces: []string{"java.io.Serializable"}, methods: []string{
		"public abstract int intValue()",
		"public abstract long longValue()",
		"public abstract float floatValue()",
		"public abstract double doubleValue()",
		"public byte byteValue()",
		"public short shortValue()",
	}},
	{name: "java.lang.Boolean", ifaces: []string{"java.io.Serializable", "java.lang.Comparable"}, methods: []string{
		"public static java.lang.Boolean valueOf(boolean)",
		"public boolean booleanValue()",
		"public static int hashCode(boolean)",
	}},
	{name: "java.lang.Character", ifaces: []string{"java.io.Serializable", "java.lang.Comparable"}, methods: []string{
		"public static java.lang.Character valueOf(char)",
		"public char charValue()",
		"public static int hashCode(char)",
	}},
	{name: "java.lang.Byte", super: "java.lang.Number", ifaces: []string{"java.lang.Comparable"}, methods: []string{
		"public static java.lang.Byte valueOf(byte)",
		"public static int hashCode(byte)",
	}},
	{name: "java.lang.Short", super: "java.lang.Number", ifaces: []string{"java.lang.Comparable"}, methods: []string{
		"public static java.lang.Short valueOf(short)",
		"public static int hashCode(short)",
	}},
	{name: "java.lang.Integer", super: "java.lang.Number", ifaces: []string{"java.lang.Comparable"}, methods: []string{
		"public static java.lang.Integer valueOf(int)",
		"public static int hashCode(int)",
		"public static int parseInt(java.lang.String)",
		"public static java.lang.String toString(int)",
	}},
	{name: "java.lang.Long", super: "java.lang.Number", ifaces: []string{"java.lang.Comparable"}, methods: []string{
		"public static java.lang.Long valueOf(long)",
		"public static int hashCode(long)",
		"public static int compare(long, long)",
	}},
	{name: "java.lang.Float", super: "java.lang.Number", ifaces: []string{"java.lang.Comparable"}, methods: []string{
		"public static java.lang.Float valueOf(float)",
		"public static int hashCode(float)",
		"public static int compare(float, float)",
	}},
	{name: "java.lang.Double", super: "java.lang.Number", ifaces: []string{"java.lang.Comparable"}, methods: []string{
		"public static java.lang.Double valueOf(double)",
		"public static int hashCode(double)",
		"public static int compare(double, double)",
	}},
	{name: "java.lang.Throwable", ifaces: []string{"java.io.Serializable"}, methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
		"public java.lang.String getMessage()",
	}},
	{name: "java.lang.Exception", super: "java.lang.Throwable", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.lang.RuntimeException", super: "java.lang.Exception", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.lang.Error", super: "java.lang.Throwable", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.lang.IllegalStateException", super: "java.lang.RuntimeException", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.lang.IllegalArgumentException", super: "java.lang.RuntimeException", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.lang.NullPointerException", super: "java.lang.RuntimeException", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.lang.ArithmeticException", super: "java.lang.RuntimeException", methods: []string{
		"public <init>()",
		"public <init>(java.lang.String)",
	}},
	{name: "java.util.Objects", methods: []string{
		"public static boolean equals(java.lang.Object, java.lang.Object)",
		"public static int hashCode(java.lang.Object)",
		"public static int hash(java.lang.Object...)",
		"public static java.lang.String toString(java.lang.Object)",
		"public static java.lang.Object requireNonNull(java.lang.Object)",
	}},
	{name: "java.lang.invoke.MethodType", ifaces: []string{"java.io.Serializable"}},
	{name: "java.lang.invoke.MethodHandles$Lookup"},
	{name: "java.lang.invoke.CallSite"},
	{name: "java.lang.invoke.MethodHandle", methods: []string{
		"public final native varargs java.lang.Object invokeExact(java.lang.Object...)",
		"public final native varargs java.lang.Object invoke(java.lang.Object...)",
		"public varargs java.lang.Object invokeWithArguments(java.lang.Object...)",
		"public java.lang.invoke.MethodType type()",
	}},
	{name: "java.lang.invoke.VarHandle", methods: []string{
		"public final native varargs java.lang.Object get(java.lang.Object...)",
		"public final native varargs void set(java.lang.Object...)",
		"public final native varargs boolean compareAndSet(java.lang.Object...)",
	}},
	{name: "java.lang.invoke.StringConcatFactory", methods: []string{
		"public static varargs java.lang.invoke.CallSite makeConcatWithConstants(" +
			"java.lang.invoke.MethodHandles$Lookup, java.lang.String, java.lang.invoke.MethodType, " +
			"java.lang.String, java.lang.Object...)",
	}},
}

func (r *Registry) bootstrap() {
	r.Object = r.MustLookup("java.lang.Object")
	for _, b := range builtins {
		d := Decl{Name: b.name, Interface: b.iface}
		if b.super != "" {
			d.Super = r.MustLookup(b.super)
		}
		for _, i := range b.ifaces {
			d.Interfaces = append(d.Interfaces, r.MustLookup(i))
		}
		t, err := r.Define(d)
		if err != nil {
			panic(err)
		}
		for _, sig := range b.methods {
			if err := r.defineSignature(t, sig); err != nil {
				panic(err)
			}
		}
	}

	r.String = r.MustLookup("java.lang.String")
	r.Number = r.MustLookup("java.lang.Number")
	r.Class = r.MustLookup("java.lang.Class")
	r.Cloneable = r.MustLookup("java.lang.Cloneable")
	r.Serializable = r.MustLookup("java.io.Serializable")
	r.CharSequence = r.MustLookup("java.lang.CharSequence")
	r.Comparable = r.MustLookup("java.lang.Comparable")
	r.Throwable = r.MustLookup("java.lang.Throwable")
	r.Exception = r.MustLookup("java.lang.Exception")
	r.RuntimeException = r.MustLookup("java.lang.RuntimeException")
	r.Error = r.MustLookup("java.lang.Error")
	r.MethodHandle = r.MustLookup("java.lang.invoke.MethodHandle")
	r.VarHandle = r.MustLookup("java.lang.invoke.VarHandle")
	r.MethodType = r.MustLookup("java.lang.invoke.MethodType")
	r.MethodHandlesLookup = r.MustLookup("java.lang.invoke.MethodHandles$Lookup")
	r.CallSite = r.MustLookup("java.lang.invoke.CallSite")
	r.StringConcatFactory = r.MustLookup("java.lang.invoke.StringConcatFactory")

	for k, box := range map[Kind]string{
		KindBoolean: "Boolean", KindByte: "Byte", KindChar: "Character", KindShort: "Short",
		KindInt: "Integer", KindFloat: "Float", KindLong: "Long", KindDouble: "Double",
	} {
		r.boxes[k] = r.MustLookup("java.lang." + box)
	}
}

var modifierWords = map[string]Modifiers{
	"public":       ModPublic,
	"private":      ModPrivate,
	"protected":    ModProtected,
	"static":       ModStatic,
	"final":        ModFinal,
	"synchronized": ModSynchronized,
	"bridge":       ModBridge,
	"varargs":      ModVarargs,
	"native":       ModNative,
	"abstract":     ModAbstract,
}

// DefineSignature declares a method of t written like a Java declaration,
// such as "public static int hash(java.lang.Object...)". Constructors are
// written without a return type.
func (r *Registry) DefineSignature(t *Type, sig string) error {
	return r.defineSignature(t, sig)
}

func (r *Registry) defineSignature(t *Type, sig string) error {
	open, end := strings.IndexByte(sig, '('), strings.LastIndexByte(sig, ')')
	if open < 0 || end < open {
		return fmt.Errorf("%w: %s", ErrInvalidTypeName, sig)
	}
	words := strings.Fields(sig[:open])
	if len(words) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTypeName, sig)
	}

	var mods Modifiers
	name := words[len(words)-1]
	words = words[:len(words)-1]
	for len(words) > 0 {
		m, ok := modifierWords[words[0]]
		if !ok {
			break
		}
		mods |= m
		words = words[1:]
	}

	ret := r.Void
	if name != "<init>" {
		if len(words) != 1 {
			return fmt.Errorf("%w: %s", ErrInvalidTypeName, sig)
		}
		var err error
		if ret, err = r.Lookup(words[0]); err != nil {
			return err
		}
	}

	var params []*Type
	if list := strings.TrimSpace(sig[open+1 : end]); list != "" {
		for _, p := range strings.Split(list, ",") {
			p = strings.TrimSpace(p)
			if strings.HasSuffix(p, "...") {
				p = strings.TrimSuffix(p, "...") + "[]"
				mods |= ModVarargs
			}
			pt, err := r.Lookup(p)
			if err != nil {
				return err
			}
			params = append(params, pt)
		}
	}

	_, err := t.DefineMethod(mods, ret, name, params...)
	return err
}
