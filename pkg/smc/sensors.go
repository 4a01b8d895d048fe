package smc

import (
	"fmt"
	"sort"
	"strconv"
)

// Sensor is a temperature key with its display name.
type Sensor struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// knownSensors maps well known temperature keys to display names.
var knownSensors = map[string]string{
	"TA0P": "Ambient Air 1",
	"TA1P": "Ambient Air 2",
	"Th0H": "Heatpipe 1",
	"Th1H": "Heatpipe 2",
	"TC0D": "CPU Diode",
	"TC0E": "CPU Diode Virtual",
	"TC0F": "CPU Diode Filtered",
	"TC0H": "CPU Heatsink",
	"TC0P": "CPU Proximity",
	"TCAD": "CPU Package",
	"TCXC": "CPU Cores",
	"TCSc": "CPU SoC",
	"TG0D": "GPU Diode",
	"TG0H": "GPU Heatsink",
	"TG0P": "GPU Proximity",
	"Tm0P": "Mainboard",
	"TM0P": "Memory Slot Proximity",
	"TPCD": "Platform Controller Hub",
	"TB0T": "Battery 1",
	"TB1T": "Battery 2",
	"TB2T": "Battery 3",
	"Tb0P": "Battery Proximity",
	"TW0P": "Airport Card",
	"TL0P": "Display",
	"TI0P": "Thunderbolt 1",
	"TI1P": "Thunderbolt 2",
	"Ts0P": "Palm Rest",
	"Tp01": "CPU Performance Core 1",
	"Tp05": "CPU Performance Core 2",
	"Tp0D": "CPU Performance Core 3",
	"Tp0H": "CPU Performance Core 4",
	"Tp09": "CPU Efficiency Core 1",
	"Tp0T": "CPU Efficiency Core 2",
	"Tg05": "GPU Cluster 1",
	"Tg0D": "GPU Cluster 2",
	"Te05": "CPU Efficiency Core 1",
	"Tf04": "CPU Performance Core 1",
	"Tf14": "GPU Cluster 1",
}

// SensorName returns a display name for key. Per-core keys TC<hex>c are
// named by core number; unknown keys are returned as is.
func SensorName(key string) string {
	if core, ok := coreSensorIndex(key); ok {
		return fmt.Sprintf("CPU Core %d", core+1)
	}
	if name, ok := knownSensors[key]; ok {
		return name
	}
	return key
}

// DiscoverSensors picks the temperature sensors present in keys: every
// known key plus the TC<hex>c / TC<hex>C per-core family. The result is
// sorted by name.
func DiscoverSensors(keys []string) []Sensor {
	var found []Sensor
	for _, k := range keys {
		_, known := knownSensors[k]
		_, core := coreSensorIndex(k)
		if known || core {
			found = append(found, Sensor{Key: k, Name: SensorName(k)})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].Name == found[j].Name {
			return found[i].Key < found[j].Key
		}
		return found[i].Name < found[j].Name
	})

	return found
}

func coreSensorIndex(key string) (int, bool) {
	if len(key) != 4 || key[:2] != "TC" || (key[3] != 'c' && key[3] != 'C') {
		return 0, false
	}
	n, err := strconv.ParseUint(key[2:3], 16, 8)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
