// Package opcodes defines the JVM instruction set.
//
// See https://docs.oracle.com/javase/specs/jvms/se11/html/jvms-6.html
package opcodes

// Opcode is a single JVM instruction byte.
type Opcode = byte

// JVM instructions.
//
// Note: naming convention is exactly the mnemonic of the JVM specification, upper-cased.
const (
	NOP             Opcode = 0
	ACONST_NULL     Opcode = 1
	ICONST_M1       Opcode = 2
	ICONST_0        Opcode = 3
	ICONST_1        Opcode = 4
	ICONST_2        Opcode = 5
	ICONST_3        Opcode = 6
	ICONST_4        Opcode = 7
	ICONST_5        Opcode = 8
	LCONST_0        Opcode = 9
	LCONST_1        Opcode = 10
	FCONST_0        Opcode = 11
	FCONST_1        Opcode = 12
	FCONST_2        Opcode = 13
	DCONST_0        Opcode = 14
	DCONST_1        Opcode = 15
	BIPUSH          Opcode = 16
	SIPUSH          Opcode = 17
	LDC             Opcode = 18
	LDC_W           Opcode = 19
	LDC2_W          Opcode = 20
	ILOAD           Opcode = 21
	LLOAD           Opcode = 22
	FLOAD           Opcode = 23
	DLOAD           Opcode = 24
	ALOAD           Opcode = 25
	ILOAD_0         Opcode = 26
	ILOAD_1         Opcode = 27
	ILOAD_2         Opcode = 28
	ILOAD_3         Opcode = 29
	LLOAD_0         Opcode = 30
	LLOAD_1         Opcode = 31
	LLOAD_2         Opcode = 32
	LLOAD_3         Opcode = 33
	FLOAD_0         Opcode = 34
	FLOAD_1         Opcode = 35
	FLOAD_2         Opcode = 36
	FLOAD_3         Opcode = 37
	DLOAD_0         Opcode = 38
	DLOAD_1         Opcode = 39
	DLOAD_2         Opcode = 40
	DLOAD_3         Opcode = 41
	ALOAD_0         Opcode = 42
	ALOAD_1         Opcode = 43
	ALOAD_2         Opcode = 44
	ALOAD_3         Opcode = 45
	IALOAD          Opcode = 46
	LALOAD          Opcode = 47
	FALOAD          Opcode = 48
	DALOAD          Opcode = 49
	AALOAD          Opcode = 50
	BALOAD          Opcode = 51
	CALOAD          Opcode = 52
	SALOAD          Opcode = 53
	ISTORE          Opcode = 54
	LSTORE          Opcode = 55
	FSTORE          Opcode = 56
	DSTORE          Opcode = 57
	ASTORE          Opcode = 58
	ISTORE_0        Opcode = 59
	ISTORE_1        Opcode = 60
	ISTORE_2        Opcode = 61
	ISTORE_3        Opcode = 62
	LSTORE_0        Opcode = 63
	LSTORE_1        Opcode = 64
	LSTORE_2        Opcode = 65
	LSTORE_3        Opcode = 66
	FSTORE_0        Opcode = 67
	FSTORE_1        Opcode = 68
	FSTORE_2        Opcode = 69
	FSTORE_3        Opcode = 70
	DSTORE_0        Opcode = 71
	DSTORE_1        Opcode = 72
	DSTORE_2        Opcode = 73
	DSTORE_3        Opcode = 74
	ASTORE_0        Opcode = 75
	ASTORE_1        Opcode = 76
	ASTORE_2        Opcode = 77
	ASTORE_3        Opcode = 78
	IASTORE         Opcode = 79
	LASTORE         Opcode = 80
	FASTORE         Opcode = 81
	DASTORE         Opcode = 82
	AASTORE         Opcode = 83
	BASTORE         Opcode = 84
	CASTORE         Opcode = 85
	SASTORE         Opcode = 86
	POP             Opcode = 87
	POP2            Opcode = 88
	DUP             Opcode = 89
	DUP_X1          Opcode = 90
	DUP_X2          Opcode = 91
	DUP2            Opcode = 92
	DUP2_X1         Opcode = 93
	DUP2_X2         Opcode = 94
	SWAP            Opcode = 95
	IADD            Opcode = 96
	LADD            Opcode = 97
	FADD            Opcode = 98
	DADD            Opcode = 99
	ISUB            Opcode = 100
	LSUB            Opcode = 101
	FSUB            Opcode = 102
	DSUB            Opcode = 103
	IMUL            Opcode = 104
	LMUL            Opcode = 105
	FMUL            Opcode = 106
	DMUL            Opcode = 107
	IDIV            Opcode = 108
	LDIV            Opcode = 109
	FDIV            Opcode = 110
	DDIV            Opcode = 111
	IREM            Opcode = 112
	LREM            Opcode = 113
	FREM            Opcode = 114
	DREM            Opcode = 115
	INEG            Opcode = 116
	LNEG            Opcode = 117
	FNEG            Opcode = 118
	DNEG            Opcode = 119
	ISHL            Opcode = 120
	LSHL            Opcode = 121
	ISHR            Opcode = 122
	LSHR            Opcode = 123
	IUSHR           Opcode = 124
	LUSHR           Opcode = 125
	IAND            Opcode = 126
	LAND            Opcode = 127
	IOR             Opcode = 128
	LOR             Opcode = 129
	IXOR            Opcode = 130
	LXOR            Opcode = 131
	IINC            Opcode = 132
	I2L             Opcode = 133
	I2F             Opcode = 134
	I2D             Opcode = 135
	L2I             Opcode = 136
	L2F             Opcode = 137
	L2D             Opcode = 138
	F2I             Opcode = 139
	F2L             Opcode = 140
	F2D             Opcode = 141
	D2I             Opcode = 142
	D2L             Opcode = 143
	D2F             Opcode = 144
	I2B             Opcode = 145
	I2C             Opcode = 146
	I2S             Opcode = 147
	LCMP            Opcode = 148
	FCMPL           Opcode = 149
	FCMPG           Opcode = 150
	DCMPL           Opcode = 151
	DCMPG           Opcode = 152
	IFEQ            Opcode = 153
	IFNE            Opcode = 154
	IFLT            Opcode = 155
	IFGE            Opcode = 156
	IFGT            Opcode = 157
	IFLE            Opcode = 158
	IF_ICMPEQ       Opcode = 159
	IF_ICMPNE       Opcode = 160
	IF_ICMPLT       Opcode = 161
	IF_ICMPGE       Opcode = 162
	IF_ICMPGT       Opcode = 163
	IF_ICMPLE       Opcode = 164
	IF_ACMPEQ       Opcode = 165
	IF_ACMPNE       Opcode = 166
	GOTO            Opcode = 167
	JSR             Opcode = 168
	RET             Opcode = 169
	TABLESWITCH     Opcode = 170
	LOOKUPSWITCH    Opcode = 171
	IRETURN         Opcode = 172
	LRETURN         Opcode = 173
	FRETURN         Opcode = 174
	DRETURN         Opcode = 175
	ARETURN         Opcode = 176
	RETURN          Opcode = 177
	GETSTATIC       Opcode = 178
	PUTSTATIC       Opcode = 179
	GETFIELD        Opcode = 180
	PUTFIELD        Opcode = 181
	INVOKEVIRTUAL   Opcode = 182
	INVOKESPECIAL   Opcode = 183
	INVOKESTATIC    Opcode = 184
	INVOKEINTERFACE Opcode = 185
	INVOKEDYNAMIC   Opcode = 186
	NEW             Opcode = 187
	NEWARRAY        Opcode = 188
	ANEWARRAY       Opcode = 189
	ARRAYLENGTH     Opcode = 190
	ATHROW          Opcode = 191
	CHECKCAST       Opcode = 192
	INSTANCEOF      Opcode = 193
	MONITORENTER    Opcode = 194
	MONITOREXIT     Opcode = 195
	WIDE            Opcode = 196
	MULTIANEWARRAY  Opcode = 197
	IFNULL          Opcode = 198
	IFNONNULL       Opcode = 199
	GOTO_W          Opcode = 200
	JSR_W           Opcode = 201
)

var names = [...]string{
	NOP:             "nop",
	ACONST_NULL:     "aconst_null",
	ICONST_M1:       "iconst_m1",
	ICONST_0:        "iconst_0",
	ICONST_1:        "iconst_1",
	ICONST_2:        "iconst_2",
	ICONST_3:        "iconst_3",
	ICONST_4:        "iconst_4",
	ICONST_5:        "iconst_5",
	LCONST_0:        "lconst_0",
	LCONST_1:        "lconst_1",
	FCONST_0:        "fconst_0",
	FCONST_1:        "fconst_1",
	FCONST_2:        "fconst_2",
	DCONST_0:        "dconst_0",
	DCONST_1:        "dconst_1",
	BIPUSH:          "bipush",
	SIPUSH:          "sipush",
	LDC:             "ldc",
	LDC_W:           "ldc_w",
	LDC2_W:          "ldc2_w",
	ILOAD:           "iload",
	LLOAD:           "lload",
	FLOAD:           "fload",
	DLOAD:           "dload",
	ALOAD:           "aload",
	ILOAD_0:         "iload_0",
	ILOAD_1:         "iload_1",
	ILOAD_2:         "iload_2",
	ILOAD_3:         "iload_3",
	LLOAD_0:         "lload_0",
	LLOAD_1:         "lload_1",
	LLOAD_2:         "lload_2",
	LLOAD_3:         "lload_3",
	FLOAD_0:         "fload_0",
	FLOAD_1:         "fload_1",
	FLOAD_2:         "fload_2",
	FLOAD_3:         "fload_3",
	DLOAD_0:         "dload_0",
	DLOAD_1:         "dload_1",
	DLOAD_2:         "dload_2",
	DLOAD_3:         "dload_3",
	ALOAD_0:         "aload_0",
	ALOAD_1:         "aload_1",
	ALOAD_2:         "aload_2",
	ALOAD_3:         "aload_3",
	IALOAD:          "iaload",
	LALOAD:          "laload",
	FALOAD:          "faload",
	DALOAD:          "daload",
	AALOAD:          "aaload",
	BALOAD:          "baload",
	CALOAD:          "caload",
	SALOAD:          "saload",
	ISTORE:          "istore",
	LSTORE:          "lstore",
	FSTORE:          "fstore",
	DSTORE:          "dstore",
	ASTORE:          "astore",
	ISTORE_0:        "istore_0",
	ISTORE_1:        "istore_1",
	ISTORE_2:        "istore_2",
	ISTORE_3:        "istore_3",
	LSTORE_0:        "lstore_0",
	LSTORE_1:        "lstore_1",
	LSTORE_2:        "lstore_2",
	LSTORE_3:        "lstore_3",
	FSTORE_0:        "fstore_0",
	FSTORE_1:        "fstore_1",
	FSTORE_2:        "fstore_2",
	FSTORE_3:        "fstore_3",
	DSTORE_0:        "dstore_0",
	DSTORE_1:        "dstore_1",
	DSTORE_2:        "dstore_2",
	DSTORE_3:        "dstore_3",
	ASTORE_0:        "astore_0",
	ASTORE_1:        "astore_1",
	ASTORE_2:        "astore_2",
	ASTORE_3:        "astore_3",
	IASTORE:         "iastore",
	LASTORE:         "lastore",
	FASTORE:         "fastore",
	DASTORE:         "dastore",
	AASTORE:         "aastore",
	BASTORE:         "bastore",
	CASTORE:         "castore",
	SASTORE:         "sastore",
	POP:             "pop",
	POP2:            "pop2",
	DUP:             "dup",
	DUP_X1:          "dup_x1",
	DUP_X2:          "dup_x2",
	DUP2:            "dup2",
	DUP2_X1:         "dup2_x1",
	DUP2_X2:         "dup2_x2",
	SWAP:            "swap",
	IADD:            "iadd",
	LADD:            "ladd",
	FADD:            "fadd",
	DADD:            "dadd",
	ISUB:            "isub",
	LSUB:            "lsub",
	FSUB:            "fsub",
	DSUB:            "dsub",
	IMUL:            "imul",
	LMUL:            "lmul",
	FMUL:            "fmul",
	DMUL:            "dmul",
	IDIV:            "idiv",
	LDIV:            "ldiv",
	FDIV:            "fdiv",
	DDIV:            "ddiv",
	IREM:            "irem",
	LREM:            "lrem",
	FREM:            "frem",
	DREM:            "drem",
	INEG:            "ineg",
	LNEG:            "lneg",
	FNEG:            "fneg",
	DNEG:            "dneg",
	ISHL:            "ishl",
	LSHL:            "lshl",
	ISHR:            "ishr",
	LSHR:            "lshr",
	IUSHR:           "iushr",
	LUSHR:           "lushr",
	IAND:            "iand",
	LAND:            "land",
	IOR:             "ior",
	LOR:             "lor",
	IXOR:            "ixor",
	LXOR:            "lxor",
	IINC:            "iinc",
	I2L:             "i2l",
	I2F:             "i2f",
	I2D:             "i2d",
	L2I:             "l2i",
	L2F:             "l2f",
	L2D:             "l2d",
	F2I:             "f2i",
	F2L:             "f2l",
	F2D:             "f2d",
	D2I:             "d2i",
	D2L:             "d2l",
	D2F:             "d2f",
	I2B:             "i2b",
	I2C:             "i2c",
	I2S:             "i2s",
	LCMP:            "lcmp",
	FCMPL:           "fcmpl",
	FCMPG:           "fcmpg",
	DCMPL:           "dcmpl",
	DCMPG:           "dcmpg",
	IFEQ:            "ifeq",
	IFNE:            "ifne",
	IFLT:            "iflt",
	IFGE:            "ifge",
	IFGT:            "ifgt",
	IFLE:            "ifle",
	IF_ICMPEQ:       "if_icmpeq",
	IF_ICMPNE:       "if_icmpne",
	IF_ICMPLT:       "if_icmplt",
	IF_ICMPGE:       "if_icmpge",
	IF_ICMPGT:       "if_icmpgt",
	IF_ICMPLE:       "if_icmple",
	IF_ACMPEQ:       "if_acmpeq",
	IF_ACMPNE:       "if_acmpne",
	GOTO:            "goto",
	JSR:             "jsr",
	RET:             "ret",
	TABLESWITCH:     "tableswitch",
	LOOKUPSWITCH:    "lookupswitch",
	IRETURN:         "ireturn",
	LRETURN:         "lreturn",
	FRETURN:         "freturn",
	DRETURN:         "dreturn",
	ARETURN:         "areturn",
	RETURN:          "return",
	GETSTATIC:       "getstatic",
	PUTSTATIC:       "putstatic",
	GETFIELD:        "getfield",
	PUTFIELD:        "putfield",
	INVOKEVIRTUAL:   "invokevirtual",
	INVOKESPECIAL:   "invokespecial",
	INVOKESTATIC:    "invokestatic",
	INVOKEINTERFACE: "invokeinterface",
	INVOKEDYNAMIC:   "invokedynamic",
	NEW:             "new",
	NEWARRAY:        "newarray",
	ANEWARRAY:       "anewarray",
	ARRAYLENGTH:     "arraylength",
	ATHROW:          "athrow",
	CHECKCAST:       "checkcast",
	INSTANCEOF:      "instanceof",
	MONITORENTER:    "monitorenter",
	MONITOREXIT:     "monitorexit",
	WIDE:            "wide",
	MULTIANEWARRAY:  "multianewarray",
	IFNULL:          "ifnull",
	IFNONNULL:       "ifnonnull",
	GOTO_W:          "goto_w",
	JSR_W:           "jsr_w",
}

// Name returns the mnemonic of op, such as "iload_0".
func Name(op Opcode) string {
	if int(op) < len(names) && names[op] != "" {
		return names[op]
	}
	return "unknown"
}

// IsConditional returns true if op is a two-way branch.
func IsConditional(op Opcode) bool {
	return (op >= IFEQ && op <= IF_ACMPNE) || op == IFNULL || op == IFNONNULL
}

// FlipIf returns the conditional branch which is taken exactly when op is not.
func FlipIf(op Opcode) Opcode {
	if op >= IFNULL {
		return op ^ 1
	}
	return ((op - 1) ^ 1) + 1
}
