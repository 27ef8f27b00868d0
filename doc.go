// Package ecflash reads and programs the SPI flash behind an ENE KB3310B
// embedded controller through the host's index-io ports.
//
// The main firmware ROM is programmed byte by byte by the host over the EC's
// XBI interface while the EC is held in reset mode; the information element
// (IE) region is handed to the EC firmware in 8 byte pieces. Programming the
// ROM reboots the machine, and a failed run can leave it unbootable.
//
// # References:
//
// EC
//   - [KB3310B]: ENE KB3310B Keyboard Controller datasheet, XBI and SPI host interface
//   - [ec_kb3310b.h]: Lemote Loongson 2F platform EC register header
//
// SPI Flash
//   - [MX25L512]: Macronix MX25L512 datasheet, Status Register and Command Set
//   - [SST25LF020A]: SST 2 Mbit SPI Serial Flash datasheet, Status Register
package ecflash
