/*
Package bmp280 drives a Bosch BMP280 barometer over I2C.

Reference 1: https://github.com/BoschSensortec/BMP280_driver
Reference 2: https://forums.adafruit.com/viewtopic.php?f=19&t=89049
*/
package bmp280

import (
	"fmt"
	"log"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/RocketScienceOfficial/rocket-nav-lib/sensors"
)

const (
	BufSize        = 256              // Buffer size for readings
	ExtraReadDelay = time.Millisecond // Delay after each register write
)

// Bus is the part of an I2C bus the driver uses. embd.I2CBus satisfies it.
type Bus interface {
	ReadFromReg(addr, reg byte, value []byte) error
	WriteByteToReg(addr, reg, value byte) error
}

type BMP280 struct {
	bus Bus

	Address byte
	ChipID  byte
	config  byte
	control byte

	t time.Time

	Standby time.Duration

	Calibration

	C      <-chan *sensors.BMPData // Latest reading
	CBuf   <-chan *sensors.BMPData // Buffered readings
	cClose chan struct{}
	done   chan struct{}
}

// Open initializes I2C bus busNum through embd and starts a BMP280 on it
// in normal mode with the given standby time.
func Open(busNum, address, standby byte) (*BMP280, error) {
	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("bmp280: initializing i2c: %s", err)
	}
	return NewBMP280(embd.NewI2CBus(busNum), address, NormalMode, standby, FilterCoeff4, Oversamp2x, Oversamp16x)
}

/*
NewBMP280 returns a BMP280 with the chosen settings and starts polling it:
address is one of bmp280.Address1 (0x76) or bmp280.Address2 (0x77).
powerMode is one of bmp280.SleepMode, bmp280.ForcedMode, or bmp280.NormalMode.
standby is one of the bmp280.StandbyTimeX (1ms up to 4000ms).
filter is one of bmp280.FilterCoeffX.
tempRes and presRes are bmp280.OversampX.
See the BMP280 datasheet for details.
*/
func NewBMP280(bus Bus, address, powerMode, standby, filter, tempRes, presRes byte) (bmp *BMP280, err error) {
	bmp = new(BMP280)
	bmp.bus = bus
	bmp.Address = address

	// Make sure we can connect to the chip and read a valid ChipID
	v := make([]byte, 1)
	if errv := bmp.i2cReadBytes(RegisterChipID, v); errv != nil {
		return nil, fmt.Errorf("bmp280: couldn't find chip at address %x: %s", address, errv)
	}
	if v[0] != ChipID1 && v[0] != ChipID2 && v[0] != ChipID3 {
		return nil, fmt.Errorf("bmp280: wrong ChipID, got %x", v)
	}
	bmp.ChipID = v[0]

	bmp.config = (standby << 5) + (filter << 2)
	bmp.control = (tempRes << 5) + (presRes << 2) + powerMode

	bmp.t = time.Now()
	bmp.Standby = delayFromStandby(standby)

	bmp.i2cWrite(RegisterSoftReset, SoftResetCode)
	bmp.i2cWrite(RegisterControl, bmp.control)
	bmp.i2cWrite(RegisterConfig, bmp.config)

	if err = bmp.ReadCorrectionSettings(); err != nil {
		return nil, err
	}

	cC := make(chan *sensors.BMPData)
	cBuf := make(chan *sensors.BMPData, BufSize)
	bmp.C, bmp.CBuf = cC, cBuf
	bmp.cClose = make(chan struct{})
	bmp.done = make(chan struct{})
	go bmp.readSensor(cC, cBuf)

	return bmp, nil
}

// Close stops polling and puts the chip to sleep.
func (bmp *BMP280) Close() {
	close(bmp.cClose)
	<-bmp.done
	bmp.SetPowerMode(SleepMode)
}

// Sensor returns the driver's reading channels.
func (bmp *BMP280) Sensor() sensors.PressureSensor {
	return sensors.PressureSensor{C: bmp.C, CBuf: bmp.CBuf}
}

func delayFromStandby(standby byte) (delay time.Duration) {
	if standby == 0 {
		delay = 500 * time.Microsecond
	} else if standby == 1 {
		delay = 62500 * time.Microsecond
	} else {
		delay = time.Duration(int(4000)>>uint(7-standby)) * time.Millisecond
	}
	return
}

// ReadCorrectionSettings reads the factory calibration of the chip.
func (bmp *BMP280) ReadCorrectionSettings() error {
	raw := make([]byte, 24)
	if err := bmp.i2cReadBytes(RegisterCompData, raw); err != nil {
		return fmt.Errorf("bmp280: error reading calibration: %s", err)
	}
	bmp.Calibration = ParseCalibration(raw)
	return nil
}

func (bmp *BMP280) readSensor(cC, cBuf chan *sensors.BMPData) {
	var temp, press float64

	defer close(bmp.done)
	defer close(cC)
	defer close(cBuf)

	raw := make([]byte, 6)

	clock := time.NewTicker(bmp.Standby)
	defer clock.Stop()

	t := time.Now()
	makeBMPData := func() *sensors.BMPData {
		return &sensors.BMPData{
			Temperature: temp,
			Pressure:    press,
			T:           t.Sub(bmp.t),
		}
	}

	// The first conversion after reset is stale
	if err := bmp.i2cReadBytes(RegisterPressDataMSB, raw); err != nil {
		log.Printf("bmp280: warning: error reading sensor data: %s\n", err)
	}

	for {
		select {
		case t = <-clock.C:
			if err := bmp.i2cReadBytes(RegisterPressDataMSB, raw); err != nil {
				log.Printf("bmp280: warning: error reading sensor data: %s\n", err)
				continue
			}
			rawPress, rawTemp := unpack(raw)
			var tFine int32
			temp, tFine = bmp.CompensateTemp(rawTemp)
			press = bmp.CompensatePress(rawPress, tFine)
			select {
			case cBuf <- makeBMPData():
			default:
			}
		case cC <- makeBMPData():
		case <-bmp.cClose:
			return
		}
	}
}

// GetPowerMode returns the current power mode of the chip:
// bmp280.SleepMode, bmp280.ForcedMode or bmp280.NormalMode.
func (bmp *BMP280) GetPowerMode() (powerMode byte, err error) {
	v := make([]byte, 1)
	if errv := bmp.i2cReadBytes(RegisterControl, v); errv != nil {
		return 0, fmt.Errorf("bmp280: couldn't read power mode: %s", errv)
	}
	return v[0] & 0x03, nil
}

// SetPowerMode sets the power mode of the chip.
func (bmp *BMP280) SetPowerMode(powerMode byte) error {
	v := make([]byte, 1)
	if errv := bmp.i2cReadBytes(RegisterControl, v); errv != nil {
		return fmt.Errorf("bmp280: couldn't read power mode: %s", errv)
	}
	v[0] = (v[0] & 0xfc) | powerMode

	if errv := bmp.i2cWrite(RegisterControl, v[0]); errv != nil {
		return fmt.Errorf("bmp280: couldn't write power mode: %s", errv)
	}
	return nil
}

// SetStandbyTime sets the standby time between conversions in normal mode.
func (bmp *BMP280) SetStandbyTime(standbyTime byte) error {
	v := make([]byte, 1)
	if errv := bmp.i2cReadBytes(RegisterConfig, v); errv != nil {
		return fmt.Errorf("bmp280: couldn't read standby time: %s", errv)
	}
	v[0] = (v[0] & 0x1f) | (standbyTime << 5)

	if errv := bmp.i2cWrite(RegisterConfig, v[0]); errv != nil {
		return fmt.Errorf("bmp280: couldn't write standby time: %s", errv)
	}
	bmp.Standby = delayFromStandby(standbyTime)
	return nil
}

func (bmp *BMP280) i2cWrite(register, value byte) (err error) {
	if errWrite := bmp.bus.WriteByteToReg(bmp.Address, register, value); errWrite != nil {
		err = fmt.Errorf("bmp280: error writing %X to %X: %s", value, register, errWrite)
	}
	time.Sleep(ExtraReadDelay)
	return
}

func (bmp *BMP280) i2cReadBytes(register byte, value []byte) (err error) {
	if errRead := bmp.bus.ReadFromReg(bmp.Address, register, value); errRead != nil {
		err = fmt.Errorf("bmp280: error reading from %X: %s", register, errRead)
	}
	return err
}
