// Package rfm69 provides constants for register addresses and bitfields used
// in the operation of the HopeRF RFM69 (Semtech SX1231) FSK transceiver.
package rfm69

const (
	// --- Register addresses ---
	regFifo          = 0x00
	regOpMode        = 0x01
	regDataModul     = 0x02
	regBitrateMsb    = 0x03
	regBitrateLsb    = 0x04
	regFdevMsb       = 0x05
	regFdevLsb       = 0x06
	regFrfMsb        = 0x07
	regFrfMid        = 0x08
	regFrfLsb        = 0x09
	regPaLevel       = 0x11
	regOcp           = 0x13
	regRxBw          = 0x19
	regDioMapping2   = 0x26
	regIrqFlags1     = 0x27
	regIrqFlags2     = 0x28
	regRssiThresh    = 0x29
	regPreambleMsb   = 0x2C
	regPreambleLsb   = 0x2D
	regSyncConfig    = 0x2E
	regSyncValue1    = 0x2F
	regSyncValue2    = 0x30
	regPacketConfig1 = 0x37
	regPayloadLength = 0x38
	regFifoThresh    = 0x3C
	regPacketConfig2 = 0x3D

	// --- SPI framing ---
	addrMask  = 0x7F
	writeFlag = 0x80

	// --- RegOpMode (0x01) ---
	opModeMask    = 0xE3 // keeps SequencerOff, ListenOn, ListenAbort
	opModeSleep   = 0x00
	opModeStandby = 0x04
	opModeTx      = 0x0C

	// --- RegIrqFlags1 (0x27) ---
	irq1ModeReady = 0x80

	// --- RegIrqFlags2 (0x28) ---
	irq2FifoOverrun = 0x10 // write 1 to clear the FIFO
	irq2PacketSent  = 0x08

	// --- RegPaLevel (0x11) ---
	paLevelPa1 = 0x40
	paLevelPa2 = 0x20
	paPowerMax = 0x1F

	// Register values written by InitChip.
	valDataModulPacketFSK = 0x00 // packet mode, FSK, no shaping
	valFdevMsb            = 0x05 // 0x05C3 * 61 Hz = 90 kHz
	valFdevLsb            = 0xC3
	valOcp120mA           = 0x1F
	valRxBw               = 0x42 // DccFreq 010, Mant 16, Exp 2
	valDioMapping2NoClk   = 0x07
	valRssiThresh         = 220
	valPreambleMsb        = 0x00
	valPreambleLsb        = 0x03 // 3 bytes of 0xAA
	valSyncConfig         = 0x88 // SyncOn, FifoFillAuto, SyncSize=2, tol 0
	valSyncValue1         = 0x2D
	valSyncValue2         = 0xD4
	valPacketConfig1      = 0x00 // fixed length, no CRC, no address filter
	valPayloadLength      = 0x0C // placeholder; Send writes the real length
	valFifoThresh         = 0x8F // TxStartCondition = FIFO not empty
	valPacketConfig2      = 0x12 // AutoRxRestartOn, AesOff

	// FifoSize is the transmit FIFO capacity in bytes.
	FifoSize = 66
	// MaxPayload is the largest frame Send accepts.
	MaxPayload = 64
)
