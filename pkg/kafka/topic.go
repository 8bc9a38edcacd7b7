package kafka

// TopicPrefix namespaces every platform topic.
const TopicPrefix = "training"

// Topic builds a topic name of the form training.<domain>.<action>.
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}
