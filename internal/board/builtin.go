package board

const kb = 1024

// Builtin returns the default board catalog. lm3s6965 has the most complete
// QEMU machine model and is the default simulation target.
func Builtin() *Registry {
	return NewRegistry(
		Config{
			ID:            "lm3s6965",
			Name:          "LM3S6965 (Stellaris)",
			Arch:          ArchCortexM3,
			FlashLimit:    256 * kb,
			RAMLimit:      64 * kb,
			ClockMHz:      50,
			Compiler:      "arm-none-eabi-gcc",
			CompilerFlags: []string{"-mcpu=cortex-m3", "-mthumb"},
			QEMUMachine:   "lm3s6965evb",
			QEMUCPU:       "cortex-m3",
			Notes:         "best QEMU support, good for testing",
		},
		Config{
			ID:            "stm32f103c8",
			Name:          "STM32F103C8 (Blue Pill)",
			Arch:          ArchCortexM3,
			FlashLimit:    64 * kb,
			RAMLimit:      20 * kb,
			ClockMHz:      72,
			Compiler:      "arm-none-eabi-gcc",
			CompilerFlags: []string{"-mcpu=cortex-m3", "-mthumb"},
			QEMUMachine:   "stm32vldiscovery",
			QEMUCPU:       "cortex-m3",
			Notes:         "popular cheap dev board, limited RAM",
		},
		Config{
			ID:            "stm32f401re",
			Name:          "STM32F401RE (Nucleo)",
			Arch:          ArchCortexM4F,
			FlashLimit:    512 * kb,
			RAMLimit:      96 * kb,
			ClockMHz:      84,
			Compiler:      "arm-none-eabi-gcc",
			CompilerFlags: []string{"-mcpu=cortex-m4", "-mthumb", "-mfloat-abi=hard", "-mfpu=fpv4-sp-d16"},
			QEMUMachine:   "netduinoplus2",
			QEMUCPU:       "cortex-m4",
			HasFPU:        true,
			Notes:         "good balance of performance and cost",
		},
		Config{
			ID:            "stm32f407vg",
			Name:          "STM32F407VG (Discovery)",
			Arch:          ArchCortexM4F,
			FlashLimit:    1024 * kb,
			RAMLimit:      192 * kb,
			ClockMHz:      168,
			Compiler:      "arm-none-eabi-gcc",
			CompilerFlags: []string{"-mcpu=cortex-m4", "-mthumb", "-mfloat-abi=hard", "-mfpu=fpv4-sp-d16"},
			QEMUMachine:   "netduinoplus2",
			QEMUCPU:       "cortex-m4",
			HasFPU:        true,
			Notes:         "high performance, lots of peripherals",
		},
		Config{
			ID:            "stm32l476rg",
			Name:          "STM32L476RG (Nucleo)",
			Arch:          ArchCortexM4F,
			FlashLimit:    1024 * kb,
			RAMLimit:      128 * kb,
			ClockMHz:      80,
			Compiler:      "arm-none-eabi-gcc",
			CompilerFlags: []string{"-mcpu=cortex-m4", "-mthumb", "-mfloat-abi=hard", "-mfpu=fpv4-sp-d16"},
			QEMUMachine:   "netduinoplus2",
			QEMUCPU:       "cortex-m4",
			HasFPU:        true,
			Notes:         "ultra low power",
		},
		Config{
			ID:            "esp32",
			Name:          "ESP32 (Generic)",
			Arch:          ArchXtensaLX6,
			FlashLimit:    4096 * kb,
			RAMLimit:      520 * kb,
			ClockMHz:      240,
			Compiler:      "xtensa-esp32-elf-gcc",
			CompilerFlags: []string{"-mlongcalls"},
			RemoteSim:     true,
			HasFPU:        true,
			Notes:         "no QEMU machine model; simulated via remote service",
		},
		Config{
			ID:            "arduino_uno",
			Name:          "Arduino Uno (ATmega328P)",
			Arch:          ArchAVR,
			FlashLimit:    32 * kb,
			RAMLimit:      2 * kb,
			ClockMHz:      16,
			Compiler:      "avr-gcc",
			CompilerFlags: []string{"-mmcu=atmega328p"},
			Notes:         "very limited resources, no QEMU",
		},
	)
}

// DefaultBoardID is used when a request does not name a board.
const DefaultBoardID = "lm3s6965"
