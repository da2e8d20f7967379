package env

import "time"

const (
	GPIO04 = "GPIO4"  // anemometer
	GPIO05 = "GPIO5"  // CS bmp280 (SPI variant)
	GPIO17 = "GPIO17" // rain pin
	GPIO19 = "GPIO19" // rain tip LED
	GPIO20 = "GPIO20" // heartbeat LED
	GPIO22 = "GPIO22" // vane B, sense line
	GPIO27 = "GPIO27" // vane A, reference line

	RainSensorIn = GPIO17
	WindSensorIn = GPIO04
	VaneRefPin   = GPIO27
	VaneSensePin = GPIO22

	HeartbeatLed = GPIO20
	RainTipLed   = GPIO19

	// edges closer together than this are switch bounce
	RainDebounce = 300 * time.Millisecond
	WindDebounce = 10 * time.Millisecond

	// https://www.argentdata.com/files/80422_datasheet.pdf
	MMPerBucketTip = 0.2794 // mm per rain gauge tip
	KmhPerTick     = 2.4    // km/h for one anemometer closure per second

	HPaToInHg     = 0.02953
	MmToInch      = 25.4
	ReportFreqMin = 15

	StandardSeaLevelhPa = 1013.25
	StandardTempC       = 15.0

	LEDFlashDuration = time.Millisecond * 50

	BME280_I2C  = 0x76
	MCP9808_I2C = 0x18

	// The wind gust is the maximum three second average wind speed in the report window.
	GustSeconds = 3
)
