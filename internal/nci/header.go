// Package nci defines the NCI command/response/notification message
// bodies the controller state engine dispatches and emits (spec.md
// §4.4.2), plus the GID/OID/status vocabulary of [NCI] §3. Like
// package rf, this is the concrete stand-in for the generated NCI
// packet codec spec.md §1 treats as an external collaborator.
package nci

// GID identifies the command group carried in NCI header byte 0 bits
// 3..0 (control packets only).
type GID uint8

const (
	GIDCore         GID = 0x0
	GIDRF           GID = 0x1
	GIDNFCEE        GID = 0x2
	GIDProprietary  GID = 0xF
)

// OID identifies the opcode carried in NCI header byte 1.
type OID uint8

const (
	OIDCoreReset      OID = 0x00
	OIDCoreInit       OID = 0x01
	OIDCoreSetConfig  OID = 0x02
	OIDCoreGetConfig  OID = 0x03
	OIDCoreConnCreate OID = 0x04
	OIDCoreConnClose  OID = 0x05
	OIDCoreConnCredits OID = 0x06

	OIDRfDiscoverMap      OID = 0x00
	OIDRfDiscover         OID = 0x03
	OIDRfDiscoverSelect   OID = 0x04
	OIDRfIntfActivated    OID = 0x05
	OIDRfDeactivate       OID = 0x06
	OIDRfNfceeDiscoveryReq OID = 0x0A

	OIDNfceeDiscover OID = 0x00
	OIDNfceeModeSet  OID = 0x01

	OIDAndroidGetCaps                 OID = 0x01
	OIDAndroidPassiveObserveMode       OID = 0x02
	OIDAndroidQueryPassiveObserveMode  OID = 0x03
	OIDAndroidPollingLoopNtf           OID = 0x04
)

// Status mirrors [NCI] Table 95.
type Status uint8

const (
	StatusOk                  Status = 0x00
	StatusRejected            Status = 0x01
	StatusMessageCorrupted    Status = 0x02
	StatusFailed              Status = 0x03
	StatusNotInitialized      Status = 0x04
	StatusSyntaxError         Status = 0x05
	StatusSemanticError       Status = 0x06
	StatusUnknownGID          Status = 0x07
	StatusUnknownOID          Status = 0x08
	StatusInvalidParam        Status = 0x09
	StatusMessageSizeExceeded Status = 0x0A
)

// ResetType is CORE_RESET_CMD's reset-type field.
type ResetType uint8

const (
	ResetKeepConfig  ResetType = 0x00
	ResetConfig      ResetType = 0x01
)

// ResetTrigger is CORE_RESET_NTF's trigger field.
type ResetTrigger uint8

const (
	TriggerUnrecoverableError ResetTrigger = 0x00
	TriggerResetCommand       ResetTrigger = 0x01
	TriggerPowerOn            ResetTrigger = 0x02
)

// ConfigStatus is CORE_RESET_NTF's config_status field.
type ConfigStatus uint8

const (
	ConfigKept  ConfigStatus = 0x00
	ConfigReset ConfigStatus = 0x01
)

// DestinationType is CORE_CONN_CREATE_CMD's destination type field.
type DestinationType uint8

const (
	DestRemoteNfcEndpoint DestinationType = 0x02
)

// RFInterface mirrors [NCI] §5.2's RF interface vocabulary.
type RFInterface uint8

const (
	RFInterfaceFrame       RFInterface = 0x01
	RFInterfaceIsoDep      RFInterface = 0x02
	RFInterfaceNfcDep      RFInterface = 0x03
	RFInterfaceNfceeDirect RFInterface = 0x04
	RFInterfaceNdef        RFInterface = 0x05
)

// NotificationTag marks whether an RF_DISCOVER_NTF entry is the last
// in the current poll window (spec.md §4.4.1).
type NotificationTag uint8

const (
	MoreNotification NotificationTag = 0x00
	LastNotification NotificationTag = 0x01
)

// Header bundles GID and OID for dispatch switches.
type Header struct {
	GID GID
	OID OID
}
