package compiler

import (
	"bufio"
	"strconv"
	"strings"
)

// ParseSizeReport extracts section sizes from `size -A` output, which looks
// like:
//
//	firmware.elf  :
//	section            size    addr
//	.text              1234       0
//	.data                12   536870912
//	.bss                 64   536870924
//	Total              1310
//
// Unknown sections are ignored. .rodata is typically folded into .text by
// the linker script; if it appears standalone it counts toward flash.
func ParseSizeReport(out string) Memory {
	var m Memory
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case ".text", ".rodata":
			m.Text += size
		case ".data":
			m.Data += size
		case ".bss":
			m.BSS += size
		}
	}
	m.FlashUsage = m.Text + m.Data
	m.RAMUsage = m.Data + m.BSS
	return m
}
