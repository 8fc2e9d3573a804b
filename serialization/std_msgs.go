package serialization

// String mirrors std_msgs/String
type String struct {
	Data string `json:"data"`
}

// Bool mirrors std_msgs/Bool
type Bool struct {
	Data bool `json:"data"`
}

// Int32 mirrors std_msgs/Int32
type Int32 struct {
	Data int32 `json:"data"`
}

// Int64 mirrors std_msgs/Int64
type Int64 struct {
	Data int64 `json:"data"`
}

// Float64 mirrors std_msgs/Float64
type Float64 struct {
	Data float64 `json:"data"`
}

// Empty mirrors std_msgs/Empty
type Empty struct{}

func standardTypes() map[string]interface{} {
	return map[string]interface{}{
		"std_msgs/String":  &String{},
		"std_msgs/Bool":    &Bool{},
		"std_msgs/Int32":   &Int32{},
		"std_msgs/Int64":   &Int64{},
		"std_msgs/Float64": &Float64{},
		"std_msgs/Empty":   &Empty{},
	}
}
