package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// Usage records which optional runtime features a program needs.
type Usage struct {
	Time    bool
	Random  bool
	PWM     bool
	Network bool
}

// Dialect renders the GPIO primitives of one target runtime. Device
// arguments are already Python expressions (a constant or a parameter).
type Dialect interface {
	Name() string
	Supports(targetIndex int) bool

	Imports(u Usage) []string
	Setup(u Usage) []string
	// DeviceValue is the value bound to a device name or parameter.
	DeviceValue(d *models.Device) string
	// DeviceSetup configures the pin held by target.
	DeviceSetup(target string, d *models.Device) []string

	Write(dev string, high bool) string
	Read(dev string) string
	Toggle(dev string) string
	Duty(dev, expr string) string
	WaitPressed(dev string) []string
	Networks(ssids, passwords []string) []string

	Report(expr string) string
	Cleanup(u Usage, outputs []string) []string
}

// RPiGPIO targets Linux boards through the RPi.GPIO module.
type RPiGPIO struct{}

// NewRPiGPIO creates the RPi.GPIO dialect.
func NewRPiGPIO() *RPiGPIO {
	return &RPiGPIO{}
}

func (d *RPiGPIO) Name() string { return "rpi-gpio" }

func (d *RPiGPIO) Supports(targetIndex int) bool {
	return targetIndex > 0 && targetIndex < len(models.TargetModels)
}

func (d *RPiGPIO) Imports(u Usage) []string {
	out := []string{"import json", "import RPi.GPIO as GPIO"}
	if u.Time {
		out = append(out, "import time")
	}
	if u.Random {
		out = append(out, "import random")
	}
	return out
}

func (d *RPiGPIO) Setup(u Usage) []string {
	out := []string{"GPIO.setwarnings(False)", "GPIO.setmode(GPIO.BCM)"}
	if u.PWM {
		out = append(out,
			"",
			"__pwm = {}",
			"",
			"def __set_duty(pin, value):",
			"    if pin not in __pwm:",
			"        __pwm[pin] = GPIO.PWM(pin, 1000)",
			"        __pwm[pin].start(0)",
			"    __pwm[pin].ChangeDutyCycle(max(0, min(255, value)) * 100 / 255)",
		)
	}
	return out
}

func (d *RPiGPIO) DeviceValue(dev *models.Device) string {
	return strconv.Itoa(dev.PIN)
}

func (d *RPiGPIO) DeviceSetup(target string, dev *models.Device) []string {
	switch dev.Type {
	case models.DeviceInput:
		return []string{fmt.Sprintf("GPIO.setup(%s, GPIO.IN)", target)}
	case models.DeviceButton:
		return []string{fmt.Sprintf("GPIO.setup(%s, GPIO.IN, pull_up_down=GPIO.PUD_DOWN)", target)}
	}
	return []string{fmt.Sprintf("GPIO.setup(%s, GPIO.OUT)", target)}
}

func (d *RPiGPIO) Write(dev string, high bool) string {
	level := "GPIO.LOW"
	if high {
		level = "GPIO.HIGH"
	}
	return fmt.Sprintf("GPIO.output(%s, %s)", dev, level)
}

func (d *RPiGPIO) Read(dev string) string {
	return fmt.Sprintf("GPIO.input(%s)", dev)
}

func (d *RPiGPIO) Toggle(dev string) string {
	return fmt.Sprintf("GPIO.output(%s, not GPIO.input(%s))", dev, dev)
}

func (d *RPiGPIO) Duty(dev, expr string) string {
	return fmt.Sprintf("__set_duty(%s, %s)", dev, expr)
}

func (d *RPiGPIO) WaitPressed(dev string) []string {
	return []string{
		fmt.Sprintf("while GPIO.input(%s) == GPIO.LOW:", dev),
		"    time.sleep(0.01)",
	}
}

func (d *RPiGPIO) Networks(ssids, _ []string) []string {
	return []string{fmt.Sprintf("# Networks: %d Wi-Fi network(s) are managed by the operating system", len(ssids))}
}

func (d *RPiGPIO) Report(expr string) string {
	return fmt.Sprintf("print(%q + %s, flush=True)", models.TelemetryMarker, expr)
}

func (d *RPiGPIO) Cleanup(u Usage, _ []string) []string {
	var out []string
	if u.PWM {
		out = append(out, "for __p in __pwm.values():", "    __p.stop()")
	}
	return append(out, "GPIO.cleanup()")
}

// MicroPython targets the Pico through the machine module.
type MicroPython struct{}

// NewMicroPython creates the MicroPython dialect.
func NewMicroPython() *MicroPython {
	return &MicroPython{}
}

func (d *MicroPython) Name() string { return "micropython" }

func (d *MicroPython) Supports(targetIndex int) bool {
	return models.IsMicrocontroller(targetIndex)
}

func (d *MicroPython) Imports(u Usage) []string {
	out := []string{"import json", "from machine import Pin, PWM"}
	if u.Time {
		out = append(out, "import time")
	}
	if u.Random {
		out = append(out, "import random")
	}
	if u.Network {
		out = append(out, "import network")
	}
	return out
}

func (d *MicroPython) Setup(u Usage) []string {
	if !u.PWM {
		return nil
	}
	return []string{
		"__pwm = {}",
		"",
		"def __set_duty(pin, value):",
		"    key = str(pin)",
		"    if key not in __pwm:",
		"        __pwm[key] = PWM(pin)",
		"        __pwm[key].freq(1000)",
		"    __pwm[key].duty_u16(int(max(0, min(255, value))) * 257)",
	}
}

func (d *MicroPython) DeviceValue(dev *models.Device) string {
	switch dev.Type {
	case models.DeviceInput:
		return fmt.Sprintf("Pin(%d, Pin.IN)", dev.PIN)
	case models.DeviceButton:
		return fmt.Sprintf("Pin(%d, Pin.IN, Pin.PULL_DOWN)", dev.PIN)
	}
	return fmt.Sprintf("Pin(%d, Pin.OUT)", dev.PIN)
}

// DeviceSetup is empty: the Pin constructor configures the pin.
func (d *MicroPython) DeviceSetup(string, *models.Device) []string { return nil }

func (d *MicroPython) Write(dev string, high bool) string {
	if high {
		return dev + ".value(1)"
	}
	return dev + ".value(0)"
}

func (d *MicroPython) Read(dev string) string { return dev + ".value()" }

func (d *MicroPython) Toggle(dev string) string { return dev + ".toggle()" }

func (d *MicroPython) Duty(dev, expr string) string {
	return fmt.Sprintf("__set_duty(%s, %s)", dev, expr)
}

func (d *MicroPython) WaitPressed(dev string) []string {
	return []string{
		fmt.Sprintf("while %s.value() == 0:", dev),
		"    time.sleep(0.01)",
	}
}

func (d *MicroPython) Networks(ssids, passwords []string) []string {
	var pairs []string
	for i, ssid := range ssids {
		if strings.TrimSpace(ssid) == "" {
			continue
		}
		pw := ""
		if i < len(passwords) {
			pw = passwords[i]
		}
		pairs = append(pairs, fmt.Sprintf("(%s, %s)", pyQuote(ssid), pyQuote(pw)))
	}
	if len(pairs) == 0 {
		return []string{"# Networks: no Wi-Fi network configured"}
	}
	return []string{
		"__wlan = network.WLAN(network.STA_IF)",
		"__wlan.active(True)",
		fmt.Sprintf("for __ssid, __pw in [%s]:", strings.Join(pairs, ", ")),
		"    __wlan.connect(__ssid, __pw)",
		"    for _ in range(100):",
		"        if __wlan.isconnected():",
		"            break",
		"        time.sleep(0.1)",
		"    if __wlan.isconnected():",
		"        break",
	}
}

// Report omits flush: MicroPython's print does not accept it.
func (d *MicroPython) Report(expr string) string {
	return fmt.Sprintf("print(%q + %s)", models.TelemetryMarker, expr)
}

func (d *MicroPython) Cleanup(u Usage, outputs []string) []string {
	var out []string
	if u.PWM {
		out = append(out, "for __p in __pwm.values():", "    __p.deinit()")
	}
	for _, o := range outputs {
		out = append(out, o+".value(0)")
	}
	return out
}
