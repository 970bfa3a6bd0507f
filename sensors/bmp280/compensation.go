package bmp280

// Calibration holds the factory trimming parameters read from the chip.
type Calibration struct {
	DigT map[int]int32
	DigP map[int]int64
}

// ParseCalibration decodes the 24 calibration bytes starting at
// RegisterCompData. dig_T1 and dig_P1 are unsigned, the rest signed, all
// little-endian.
func ParseCalibration(raw []byte) (cal Calibration) {
	cal.DigT = make(map[int]int32)
	cal.DigP = make(map[int]int64)
	if len(raw) < 24 {
		return
	}

	cal.DigT[1] = int32(raw[1])<<8 + int32(raw[0])
	for i := 1; i < 3; i++ {
		cal.DigT[i+1] = int32(int16(uint16(raw[2*i+1])<<8 | uint16(raw[2*i])))
	}

	cal.DigP[1] = int64(raw[7])<<8 + int64(raw[6])
	for i := 1; i < 9; i++ {
		cal.DigP[i+1] = int64(int16(uint16(raw[2*i+7])<<8 | uint16(raw[2*i+6])))
	}
	return
}

// CompensateTemp converts a raw 20-bit temperature reading to deg C. It also
// returns t_fine, which pressure compensation needs.
func (cal Calibration) CompensateTemp(rawTemp int32) (temp float64, tFine int32) {
	var1 := (((rawTemp >> 3) - (cal.DigT[1] << 1)) * cal.DigT[2]) >> 11
	var2 := (((((rawTemp >> 4) - cal.DigT[1]) * ((rawTemp >> 4) - cal.DigT[1])) >> 12) * cal.DigT[3]) >> 14
	tFine = var1 + var2
	t := (tFine*5 + 128) >> 8
	return float64(t) / 100, tFine
}

// CompensatePress converts a raw 20-bit pressure reading to Pa using the
// 64-bit integer formula.
func (cal Calibration) CompensatePress(rawPress int64, tFine int32) (press float64) {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * cal.DigP[6]
	var2 += (var1 * cal.DigP[5]) << 17
	var2 += cal.DigP[4] << 35
	var1 = ((var1 * var1 * cal.DigP[3]) >> 8) + ((var1 * cal.DigP[2]) << 12)
	var1 = ((int64(1) << 47) + var1) * cal.DigP[1] >> 33
	if var1 == 0 {
		return 0 // Avoid division by zero
	}
	p := 1048576 - rawPress
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (cal.DigP[9] * (p >> 13) * (p >> 13)) >> 25
	var2 = (cal.DigP[8] * p) >> 19
	p = ((p + var1 + var2) >> 8) + (cal.DigP[7] << 4)
	return float64(p) / 256
}

// unpack splits the six data bytes starting at RegisterPressDataMSB into
// raw pressure and temperature.
func unpack(raw []byte) (rawPress int64, rawTemp int32) {
	rawPress = (int64(raw[0]) << 12) + (int64(raw[1]) << 4) + (int64(raw[2]) >> 4)
	rawTemp = (int32(raw[3]) << 12) + (int32(raw[4]) << 4) + (int32(raw[5]) >> 4)
	return
}
