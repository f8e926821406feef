package values

// Predicates are the only sanctioned way to narrow a Value.

func IsObjectValue(v Value) bool {
	if v == nil {
		return false
	}
	k := v.Kind()
	return k == KindObject || k == KindObjectAggregate
}

func IsCompositeListValue(v Value) bool {
	if v == nil {
		return false
	}
	k := v.Kind()
	return k == KindCompositeList || k == KindCompositeListAggregate
}

func IsScalarValue(v Value) bool        { return v != nil && v.Kind() == KindScalar }
func IsComplexScalarValue(v Value) bool { return v != nil && v.Kind() == KindComplexScalar }
func IsLeafListValue(v Value) bool      { return v != nil && v.Kind() == KindLeafList }
func IsLeafErrorValue(v Value) bool     { return v != nil && v.Kind() == KindLeafError }
func IsAggregate(v Value) bool {
	if v == nil {
		return false
	}
	k := v.Kind()
	return k == KindObjectAggregate || k == KindCompositeListAggregate
}

// IsNullValue reports explicit nulls: CompositeNull and scalar nil.
func IsNullValue(v Value) bool {
	switch v := v.(type) {
	case CompositeNull:
		return true
	case Scalar:
		return v.Data == nil
	default:
		return false
	}
}

// IsMissingValue reports values absent from raw data.
func IsMissingValue(v Value) bool {
	if v == nil {
		return true
	}
	k := v.Kind()
	return k == KindCompositeUndefined || k == KindLeafUndefined
}

func IsNodeValue(v Value) bool {
	ov, ok := v.(ObjectValue)
	return ok && ov.Key() != ""
}

// IsCompositeValue reports kinds that belong to composite-typed fields.
func IsCompositeValue(v Value) bool {
	switch v.Kind() {
	case KindObject, KindObjectAggregate, KindCompositeList, KindCompositeListAggregate, KindCompositeNull, KindCompositeUndefined:
		return true
	case KindScalar, KindComplexScalar, KindLeafList, KindLeafError, KindLeafUndefined:
		return false
	default:
		Unreachable(v)
		return false
	}
}

func IsLeafValue(v Value) bool {
	return !IsCompositeValue(v)
}
