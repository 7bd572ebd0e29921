package robot

// SensorPayload is the typed view of the sensor document the ESP32 firmware
// sends. The core stores and forwards the raw JSON; this type is only used
// by the HTTP adapter to reject malformed telemetry.
type SensorPayload struct {
	Sound          SoundData          `json:"sound"`
	Vision         VisionData         `json:"vision"`
	Touch          TouchData          `json:"touch"`
	Temperature    TemperatureData    `json:"temperature"`
	Magnetic       MagneticData       `json:"magnetic"`
	WaterLevel     int                `json:"water_level"`
	Proprioception ProprioceptionData `json:"proprioception"`
}

type SoundData struct {
	BigSound   int `json:"big_sound"`
	SmallSound int `json:"small_sound"`
}

type VisionData struct {
	Distance   float64 `json:"distance"` // cm
	LightLevel int     `json:"light_level"`
	IRDetected bool    `json:"ir_detected"`
}

type TouchData struct {
	Tap    bool `json:"tap"`
	Shock  bool `json:"shock"`
	Touch  bool `json:"touch"`
	Button bool `json:"button"`
}

type TemperatureData struct {
	DHT11    float64 `json:"dht11"`
	DS18B20  float64 `json:"ds18b20"`
	Analog   float64 `json:"analog"`
	Humidity float64 `json:"humidity"`
}

type MagneticData struct {
	Hall int  `json:"hall"`
	Reed bool `json:"reed"`
}

type ProprioceptionData struct {
	Acceleration []float64 `json:"acceleration"`
	Gyro         []float64 `json:"gyro"`
	Tilt         bool      `json:"tilt"`
}
