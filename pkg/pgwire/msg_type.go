package pgwire

// MsgType represents a PostgreSQL wire protocol message type byte.
type MsgType byte

// Client (frontend) message types sent by this package.
const (
	MsgClientBind      MsgType = 'B'
	MsgClientExecute   MsgType = 'E'
	MsgClientParse     MsgType = 'P'
	MsgClientPassword  MsgType = 'p' // Also SASL responses
	MsgClientQuery     MsgType = 'Q'
	MsgClientSync      MsgType = 'S'
	MsgClientTerminate MsgType = 'X'
)

// Server (backend) message types consumed by this package. Any other server
// message type is read and discarded by the protocol loops.
const (
	MsgServerAuth            MsgType = 'R'
	MsgServerBackendKeyData  MsgType = 'K'
	MsgServerCommandComplete MsgType = 'C'
	MsgServerDataRow         MsgType = 'D'
	MsgServerErrorResponse   MsgType = 'E'
	MsgServerNoticeResponse  MsgType = 'N'
	MsgServerParameterStatus MsgType = 'S'
	MsgServerReadyForQuery   MsgType = 'Z'
	MsgServerRowDescription  MsgType = 'T'
)

// Authentication sub-codes carried in the first 4 bytes of an 'R' message.
const (
	AuthOK                = 0
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
	AuthSASL              = 10
	AuthSASLContinue      = 11
	AuthSASLFinal         = 12
)

// ProtocolVersion is the PostgreSQL protocol version 3.0 as a wire integer
// (major 3 in the high 16 bits, minor 0 in the low 16 bits).
const ProtocolVersion = 196608

func (m MsgType) String() string {
	return string(rune(m))
}
