package query

import "strings"

// TokenType identifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIllegal

	TokenIdent
	TokenQuotedIdent
	TokenNumber
	TokenString

	TokenComma
	TokenDot
	TokenLParen
	TokenRParen
	TokenStar
	TokenMinus
	TokenSemicolon

	TokenEq
	TokenNe
	TokenLt
	TokenGt
	TokenLe
	TokenGe

	TokenSelect
	TokenFrom
	TokenWhere
	TokenGroup
	TokenOrder
	TokenBy
	TokenLimit
	TokenAnd
	TokenOr
	TokenNot
	TokenLike
	TokenIs
	TokenNull
	TokenAs
	TokenAsc
	TokenDesc
	TokenTrue
	TokenFalse
	TokenDistinct
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "end of input",
	TokenIllegal:     "illegal character",
	TokenIdent:       "identifier",
	TokenQuotedIdent: "quoted identifier",
	TokenNumber:      "number",
	TokenString:      "string",
	TokenComma:       "','",
	TokenDot:         "'.'",
	TokenLParen:      "'('",
	TokenRParen:      "')'",
	TokenStar:        "'*'",
	TokenMinus:       "'-'",
	TokenSemicolon:   "';'",
	TokenEq:          "'='",
	TokenNe:          "'!='",
	TokenLt:          "'<'",
	TokenGt:          "'>'",
	TokenLe:          "'<='",
	TokenGe:          "'>='",
}

var keywords = map[string]TokenType{
	"SELECT":   TokenSelect,
	"FROM":     TokenFrom,
	"WHERE":    TokenWhere,
	"GROUP":    TokenGroup,
	"ORDER":    TokenOrder,
	"BY":       TokenBy,
	"LIMIT":    TokenLimit,
	"AND":      TokenAnd,
	"OR":       TokenOr,
	"NOT":      TokenNot,
	"LIKE":     TokenLike,
	"IS":       TokenIs,
	"NULL":     TokenNull,
	"AS":       TokenAs,
	"ASC":      TokenAsc,
	"DESC":     TokenDesc,
	"TRUE":     TokenTrue,
	"FALSE":    TokenFalse,
	"DISTINCT": TokenDistinct,
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	for kw, tt := range keywords {
		if tt == t {
			return kw
		}
	}
	return "unknown"
}

// Position is a 1-based location in the query text.
type Position struct {
	Line   int
	Column int
}

type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func lookupIdent(ident string) TokenType {
	if tt, ok := keywords[strings.ToUpper(ident)]; ok {
		return tt
	}
	return TokenIdent
}
