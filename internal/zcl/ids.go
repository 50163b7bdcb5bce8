// Package zcl encodes and decodes the small subset of Zigbee Cluster Library
// frames the device exchanges with its coordinator.
package zcl

import "fmt"

// Cluster IDs.
const (
	ClusterBasic       uint16 = 0x0000
	ClusterPowerConfig uint16 = 0x0001
	ClusterIdentify    uint16 = 0x0003
	ClusterOnOff       uint16 = 0x0006
	ClusterAnalogInput uint16 = 0x000C
)

// Attribute IDs.
const (
	AttrOnOff                      uint16 = 0x0000 // On/Off
	AttrIdentifyTime               uint16 = 0x0000 // Identify
	AttrBatteryVoltage             uint16 = 0x0020 // Power Configuration, 100 mV units
	AttrBatteryPercentageRemaining uint16 = 0x0021 // Power Configuration, half-percent units
	AttrPresentValue               uint16 = 0x0055 // Analog Input
)

// Data type IDs.
const (
	TypeNoData uint8 = 0x00
	TypeBool   uint8 = 0x10
	TypeUint8  uint8 = 0x20
	TypeUint16 uint8 = 0x21
	TypeInt16  uint8 = 0x29
)

// Global command IDs.
const (
	CmdReadAttributes   uint8 = 0x00
	CmdWriteAttributes  uint8 = 0x02
	CmdReportAttributes uint8 = 0x0A
	CmdDefaultResponse  uint8 = 0x0B
)

// On/Off cluster commands.
const (
	CmdOff    uint8 = 0x00
	CmdOn     uint8 = 0x01
	CmdToggle uint8 = 0x02
)

// Identify cluster commands.
const CmdIdentify uint8 = 0x00

// Frame control bits.
const (
	FrameTypeGlobal     uint8 = 0x00
	FrameTypeCluster    uint8 = 0x01
	FrameManufacturer   uint8 = 0x04
	FrameServerToClient uint8 = 0x08
	FrameDisableDefResp uint8 = 0x10
	frameTypeMask       uint8 = 0x03
)

// Coordinator destination for unsolicited reports.
const (
	CoordinatorAddr     uint16 = 0x0000
	CoordinatorEndpoint uint8  = 1
)

// ClusterName returns a short name for the clusters the device hosts.
func ClusterName(id uint16) string {
	switch id {
	case ClusterBasic:
		return "basic"
	case ClusterPowerConfig:
		return "power_config"
	case ClusterIdentify:
		return "identify"
	case ClusterOnOff:
		return "on_off"
	case ClusterAnalogInput:
		return "analog_input"
	}
	return fmt.Sprintf("0x%04X", id)
}

// AttributeName returns a short name for an attribute of a hosted cluster.
func AttributeName(cluster, id uint16) string {
	switch {
	case cluster == ClusterOnOff && id == AttrOnOff:
		return "on_off"
	case cluster == ClusterIdentify && id == AttrIdentifyTime:
		return "identify_time"
	case cluster == ClusterPowerConfig && id == AttrBatteryVoltage:
		return "battery_voltage"
	case cluster == ClusterPowerConfig && id == AttrBatteryPercentageRemaining:
		return "battery_percentage_remaining"
	case cluster == ClusterAnalogInput && id == AttrPresentValue:
		return "present_value"
	}
	return fmt.Sprintf("0x%04X", id)
}

// TypeName returns a short name for a data type.
func TypeName(typeID uint8) string {
	switch typeID {
	case TypeNoData:
		return "nodata"
	case TypeBool:
		return "bool"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeInt16:
		return "int16"
	}
	return fmt.Sprintf("0x%02X", typeID)
}
