package ir

// Kind is a compile-time-known tag identifying an operation: semantic
// opcode plus dialect. Dialects are grouped by numeric range so a Kind's
// dialect can be recovered without a side table.
type Kind int

const (
	// --- Module / Function / declarative ---
	KModule Kind = iota
	KFunc
	KGlobal

	// --- High-level (front-end) dialect: structured control flow ---
	KConst      // integer or float literal, attrs: Int/Float
	KAlloca     // stack slot, attrs: Size, Dims?, Name?
	KLoad       // operands: addr
	KStore      // operands: addr, value
	KAddr       // address-of a global or alloca, attrs: Name
	KBinOp      // operands: lhs, rhs; attrs: Name (opcode mnemonic: add/sub/mul/...)
	KUnOp       // operands: operand; attrs: Name (neg/not/...)
	KCast       // operands: operand; result_type differs from operand type
	KCall       // operands: args...; attrs: Name (callee)
	KGetElement // operands: base, indices...; array subscript address computation
	KIf         // operands: cond; regions: then, else
	KWhile      // regions: cond, body
	KFor        // operands: start, stop, step, ivAddr; regions: body
	KReturn     // operands: value?
	KBreak
	KContinue

	// --- Flattened CFG dialect (post FlattenCFG) ---
	KBranch // operands: cond; attrs: Target, Else
	KGoto   // attrs: Target
	KRet    // operands: value?
	KPhi    // operands: incoming values...; attrs: one From per operand

	// --- Parallelization markers (pre-opt) ---
	KClone // spawn a worker thread running a synthesized function
	KJoin  // wait for a spawned worker
	KWake  // release a spin lock a worker waits on

	// --- AArch64 machine dialect ---
	kArm64Base
	AMov
	AMovz
	AMovk
	AMovn
	AAdd
	AAddImm
	AAddWL // add+shift fusion (InstCombine)
	AAddXL
	ASub
	ASubImm
	AMul
	AMadd
	AMsub
	ASdiv
	ASmull
	ASmulh
	AAsr
	ALsl
	ALsr
	AAnd
	AOrr
	AEor
	ACmp
	ACset
	ACbz
	ACbnz
	ABCond
	AB
	ABl
	ARet
	ALdr
	AStr
	ALdrSp
	AStrSp
	AFadd
	AFsub
	AFmul
	AFdiv
	AFmov
	AFcvt
	AFmla
	AReadReg
	AWriteReg
	AGetArg
	APlaceholder // pre-call clobber placeholder, pre-colored
	AMovRR       // register-to-register move (phi destruction, spill glue)
	AClone
	AJoin
	AWake

	// --- RV64GC machine dialect ---
	kRvBase
	RAddi
	RAdd
	RSub
	RMul
	RMulh
	RDiv
	RRem
	RSlli
	RSrai
	RSrli
	RAnd
	RAndi
	ROr
	RXor
	RSlt
	RSlti
	RBeq
	RBne
	RBlt
	RBge
	RJ
	RJal
	RJalr
	RRet
	RLw
	RLd
	RSw
	RSd
	RLi
	RMv
	RFadd
	RFsub
	RFmul
	RFdiv
	RFmvS
	RFcvt
	RFmadd
	RReadReg
	RWriteReg
	RGetArg
	RPlaceholder
	RMv2 // rd, rs move used for phi destruction / spill glue (distinct from RMv alias-of-addi)
	RClone
	RJoin
	RWake
)

var kindNames = map[Kind]string{
	KModule: "module", KFunc: "func", KGlobal: "global",
	KConst: "const", KAlloca: "alloca", KLoad: "load", KStore: "store", KAddr: "addr",
	KBinOp: "binop", KUnOp: "unop", KCast: "cast", KCall: "call", KGetElement: "gep",
	KIf: "if", KWhile: "while", KFor: "for", KReturn: "return", KBreak: "break", KContinue: "continue",
	KBranch: "br", KGoto: "goto", KRet: "ret", KPhi: "phi",
	KClone: "clone", KJoin: "join", KWake: "wake",

	AMov: "mov", AMovz: "movz", AMovk: "movk", AMovn: "movn",
	AAdd: "add", AAddImm: "add", AAddWL: "addwl", AAddXL: "addxl",
	ASub: "sub", ASubImm: "sub", AMul: "mul", AMadd: "madd", AMsub: "msub",
	ASdiv: "sdiv", ASmull: "smull", ASmulh: "smulh",
	AAsr: "asr", ALsl: "lsl", ALsr: "lsr", AAnd: "and", AOrr: "orr", AEor: "eor",
	ACmp: "cmp", ACset: "cset", ACbz: "cbz", ACbnz: "cbnz", ABCond: "b.cond", AB: "b", ABl: "bl", ARet: "ret",
	ALdr: "ldr", AStr: "str", ALdrSp: "ldr", AStrSp: "str",
	AFadd: "fadd", AFsub: "fsub", AFmul: "fmul", AFdiv: "fdiv", AFmov: "fmov", AFcvt: "fcvt", AFmla: "fmla",
	AReadReg: "readreg", AWriteReg: "writereg", AGetArg: "getarg", APlaceholder: "placeholder", AMovRR: "mov",
	AClone: "clone", AJoin: "join", AWake: "wake",

	RAddi: "addi", RAdd: "add", RSub: "sub", RMul: "mul", RMulh: "mulh", RDiv: "div", RRem: "rem",
	RSlli: "slli", RSrai: "srai", RSrli: "srli", RAnd: "and", RAndi: "andi", ROr: "or", RXor: "xor",
	RSlt: "slt", RSlti: "slti", RBeq: "beq", RBne: "bne", RBlt: "blt", RBge: "bge",
	RJ: "j", RJal: "jal", RJalr: "jalr", RRet: "ret",
	RLw: "lw", RLd: "ld", RSw: "sw", RSd: "sd", RLi: "li", RMv: "mv",
	RFadd: "fadd.d", RFsub: "fsub.d", RFmul: "fmul.d", RFdiv: "fdiv.d", RFmvS: "fmv.d", RFcvt: "fcvt", RFmadd: "fmadd.d",
	RReadReg: "readreg", RWriteReg: "writereg", RGetArg: "getarg", RPlaceholder: "placeholder", RMv2: "mv",
	RClone: "clone", RJoin: "join", RWake: "wake",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsTerminator reports whether this kind ends a basic block.
func (k Kind) IsTerminator() bool {
	switch k {
	case KBranch, KGoto, KRet, KReturn, KBreak, KContinue,
		ABCond, AB, ACbnz, ARet, RBeq, RBne, RBlt, RBge, RJ, RRet:
		return true
	default:
		return false
	}
}

// IsAArch64 reports whether k belongs to the AArch64 machine dialect.
func (k Kind) IsAArch64() bool { return k > kArm64Base && k < kRvBase }

// IsRV64 reports whether k belongs to the RV64GC machine dialect.
func (k Kind) IsRV64() bool { return k > kRvBase }
