package asm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	machineName       = "Pendragon"
	machineVersion    = uint32(1)
	headerVersion     = uint32(1)
	maxProgramNameLen = 32
)

// BuildBinary assembles the little-endian loader container described by
// spec.md §4.13: a fixed header (size, version, machine name, machine
// version, program name) followed by length-prefixed data and code
// segments. programName longer than 32 bytes is silently truncated.
func BuildBinary(programName string, data, code []byte) []byte {
	if len(programName) > maxProgramNameLen {
		programName = programName[:maxProgramNameLen]
	}

	var body bytes.Buffer
	binary.Write(&body, binary.LittleEndian, headerVersion)
	body.WriteByte(byte(len(machineName)))
	body.WriteString(machineName)
	binary.Write(&body, binary.LittleEndian, machineVersion)

	var nameBuf [2]byte
	binary.LittleEndian.PutUint16(nameBuf[:], uint16(len(programName)))
	body.Write(nameBuf[:])
	body.WriteString(programName)
	headerLen := body.Len()

	var dataSizeBuf [4]byte
	binary.LittleEndian.PutUint32(dataSizeBuf[:], uint32(len(data)))
	body.Write(dataSizeBuf[:])
	body.Write(data)

	var codeSizeBuf [4]byte
	binary.LittleEndian.PutUint32(codeSizeBuf[:], uint32(len(code)))
	body.Write(codeSizeBuf[:])
	body.Write(code)

	var out bytes.Buffer
	var headerSizeBuf [2]byte
	binary.LittleEndian.PutUint16(headerSizeBuf[:], uint16(headerLen))
	out.Write(headerSizeBuf[:])
	out.Write(body.Bytes())
	return out.Bytes()
}

// ParseBinary reverses BuildBinary. Only the machine name is validated; the
// header size, header version and machine version fields are read and
// ignored.
func ParseBinary(raw []byte) (programName string, data, code []byte, err error) {
	r := bytes.NewReader(raw)

	var headerSize uint16
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return "", nil, nil, fmt.Errorf("reading header size: %w", err)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return "", nil, nil, fmt.Errorf("reading header version: %w", err)
	}

	nameLen, err := r.ReadByte()
	if err != nil {
		return "", nil, nil, fmt.Errorf("reading machine name length: %w", err)
	}
	nameBuf := make([]byte, nameLen)
	if _, err := r.Read(nameBuf); err != nil {
		return "", nil, nil, fmt.Errorf("reading machine name: %w", err)
	}
	if string(nameBuf) != machineName {
		return "", nil, nil, fmt.Errorf("unexpected machine name %q", nameBuf)
	}

	var mVersion uint32
	if err := binary.Read(r, binary.LittleEndian, &mVersion); err != nil {
		return "", nil, nil, fmt.Errorf("reading machine version: %w", err)
	}

	var progNameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &progNameLen); err != nil {
		return "", nil, nil, fmt.Errorf("reading program name length: %w", err)
	}
	progNameBuf := make([]byte, progNameLen)
	if _, err := r.Read(progNameBuf); err != nil {
		return "", nil, nil, fmt.Errorf("reading program name: %w", err)
	}

	var dataSize uint32
	if err := binary.Read(r, binary.LittleEndian, &dataSize); err != nil {
		return "", nil, nil, fmt.Errorf("reading data segment size: %w", err)
	}
	data = make([]byte, dataSize)
	if _, err := r.Read(data); err != nil {
		return "", nil, nil, fmt.Errorf("reading data segment: %w", err)
	}

	var codeSize uint32
	if err := binary.Read(r, binary.LittleEndian, &codeSize); err != nil {
		return "", nil, nil, fmt.Errorf("reading code segment size: %w", err)
	}
	code = make([]byte, codeSize)
	if _, err := r.Read(code); err != nil {
		return "", nil, nil, fmt.Errorf("reading code segment: %w", err)
	}

	return string(progNameBuf), data, code, nil
}
