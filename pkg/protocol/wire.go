// Package protocol implements the FileDepot wire protocol: a newline-
// delimited text command channel with an embedded binary file-transfer
// sub-protocol carried on the same TCP stream.
//
// The protocol is not self-delimiting at the byte level. A file payload of
// declared size immediately follows a textual header, with no frame around
// the header itself, so the same logical cursor must pivot between
// delimiter-terminated line reads and exact-byte-count reads. Reader
// provides that cursor; the framing helpers build on it.
//
// Wire format (all lines terminated by a single '\n'):
//
//	S→C  ASSIGNED <name>
//	C→S  NAME <name>
//	S→C  HELLO <name>. Commands: status | list | get <file> | exit
//	C→S  status | list | get <file> | exit | <free text>
//	S→C  FILESIZE <size>
//	     FILENAME <name>
//	     <blank line>
//	     <size raw payload bytes>
//
// Error responses are single lines prefixed "ERROR ". Multi-line responses
// (status) are terminated by a blank line.
package protocol

// Line prefixes shared by server and client.
const (
	AssignedPrefix = "ASSIGNED "
	NamePrefix     = "NAME "
	HelloPrefix    = "HELLO "
	SizePrefix     = "FILESIZE "
	FileNamePrefix = "FILENAME "
	ErrorPrefix    = "ERROR "
)

// Command words. Matching is case-sensitive.
const (
	CmdStatus = "status"
	CmdList   = "list"
	CmdGet    = "get"
	CmdExit   = "exit"
)

// MsgBye is the server's acknowledgment of the exit command.
const MsgBye = "BYE"

// AckSuffix is appended to echoed free-text messages.
const AckSuffix = " ACK"
