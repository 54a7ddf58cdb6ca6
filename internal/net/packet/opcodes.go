package packet

// Client → server opcodes.
const (
	C_OPCODE_LOGIN       byte = 0x01
	C_OPCODE_ENTER_WORLD byte = 0x02
	C_OPCODE_ALIVE       byte = 0x03
	C_OPCODE_QUIT        byte = 0x04
	C_OPCODE_GUILD       byte = 0x3E
)

// Server → client opcodes.
const (
	S_OPCODE_LOGIN_RESULT byte = 0x01
	S_OPCODE_ENTER_WORLD  byte = 0x02
	S_OPCODE_FIELD_WARP   byte = 0x11
	S_OPCODE_GUILD_TAG    byte = 0x3D
	S_OPCODE_GUILD        byte = 0x3E
	S_OPCODE_ITEM_GAIN    byte = 0x42
	S_OPCODE_WALLET       byte = 0x43
)
