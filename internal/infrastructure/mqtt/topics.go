package mqtt

import "fmt"

// TopicPrefixDevice is the base for all printer topics.
const TopicPrefixDevice = "device"

// Topics provides builders for printer MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Report("01S00C000000001")  // "device/01S00C000000001/report"
//	topics.Request("01S00C000000001") // "device/01S00C000000001/request"
type Topics struct{}

// Report returns the topic a printer publishes its status on.
func (Topics) Report(deviceID string) string {
	return fmt.Sprintf("%s/%s/report", TopicPrefixDevice, deviceID)
}

// Request returns the topic a printer accepts commands on.
func (Topics) Request(deviceID string) string {
	return fmt.Sprintf("%s/%s/request", TopicPrefixDevice, deviceID)
}
