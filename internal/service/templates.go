package service

// LabelServiceType is the label the templates use to tag the role of a
// service.
const LabelServiceType = "service.type"

// WebService returns a definition preconfigured for a long-running web
// frontend. The caller still sets the image.
func WebService(name string) *Definition {
	return New(name).
		SetRestartPolicy(RestartPolicy{Name: RestartUnlessStopped}).
		AddLabel(LabelServiceType, "web")
}

// DatabaseService returns a definition preconfigured for a stateful
// database. The caller still sets the image and data volume.
func DatabaseService(name string) *Definition {
	return New(name).
		SetRestartPolicy(RestartPolicy{Name: RestartUnlessStopped}).
		AddLabel(LabelServiceType, "database")
}

// RedisService returns a ready-to-deploy Redis cache on the default port.
func RedisService(name string) *Definition {
	return New(name).
		SetImage("redis:7-alpine").
		AddPort(6379, 6379, "", "").
		SetRestartPolicy(RestartPolicy{Name: RestartUnlessStopped}).
		AddLabel(LabelServiceType, "cache")
}
