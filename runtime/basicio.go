package runtime

// BasicIO is the console contract the Instruction Unit's SYS handler
// dispatches to. Per spec.md §1 the concrete implementation is an external
// collaborator - only this accessor contract is specified here.
type BasicIO interface {
	// WriteString writes s to the console with no trailing newline.
	WriteString(s string) error
	// WriteLine writes s to the console followed by a newline, then flushes.
	WriteLine(s string) error
	// ReadLine reads one line from the console (the terminating newline is
	// not included), truncated to maxLen runes.
	ReadLine(maxLen int) (string, error)
}

// Syscall numbers implemented by the Instruction Unit (spec.md §6). Ranges
// 0x0000-0x000F and 0x0100+ are reserved.
const (
	SysPrintStringFromStack uint16 = 0x0010
	SysPrintLineFromStack   uint16 = 0x0011
	SysReadLineOntoStack    uint16 = 0x0012
)
