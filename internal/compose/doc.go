// Package compose converts between service definitions and
// docker-compose-compatible YAML documents.
//
// Marshal writes a canonical document: a fixed schema version, services in
// the order they were given, and every non-default field of each
// Definition. The same input always yields byte-identical output.
//
// Unmarshal accepts the common compose spellings of each field (list or
// mapping environment, string or list command, short or long port and
// volume syntax) and builds one Definition per declared service in document
// order. It never contacts the daemon.
//
// Known losses when a Definition goes through Marshal then Unmarshal:
//   - duplicate environment keys collapse to their last value, at the
//     position of the first occurrence;
//   - a port protocol written in upper case comes back lower case;
//   - environment entries written as a bare KEY (host pass-through in
//     compose) are imported with an empty value.
package compose
