package compiler

import (
	"fmt"

	"firmforge/internal/board"
)

// LinkerScript renders a minimal linker script whose MEMORY regions match
// the board's declared limits, so the linker itself rejects gross overflow
// and the size tool sees conventionally named sections.
func LinkerScript(b board.Config) string {
	return fmt.Sprintf(`MEMORY
{
  FLASH (rx) : ORIGIN = 0x00000000, LENGTH = %d
  RAM (rwx)  : ORIGIN = 0x20000000, LENGTH = %d
}

ENTRY(reset_handler)

SECTIONS
{
  .text :
  {
    KEEP(*(.vectors))
    *(.text*)
    *(.rodata*)
  } > FLASH

  .data :
  {
    *(.data*)
  } > RAM AT > FLASH

  .bss :
  {
    *(.bss*)
    *(COMMON)
  } > RAM
}
`, b.FlashLimit, b.RAMLimit)
}
